package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/repository"
	"github.com/noah-isme/clearance-api/internal/workflow"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() {
		db.Close()
	})
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

// recordingOutbox keeps inserted events and whether they were written inside a transaction.
type recordingOutbox struct {
	mu     sync.Mutex
	events []*models.OutboxEvent
	inTx   []bool
	err    error
}

func (o *recordingOutbox) Insert(ctx context.Context, exec sqlx.ExtContext, event *models.OutboxEvent) error {
	if o.err != nil {
		return o.err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
	_, isTx := exec.(*sqlx.Tx)
	o.inTx = append(o.inTx, isTx)
	return nil
}

func (o *recordingOutbox) audits(t *testing.T) []models.AuditIntent {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []models.AuditIntent
	for _, e := range o.events {
		if e.Kind != models.OutboxKindAudit {
			continue
		}
		var intent models.AuditIntent
		require.NoError(t, json.Unmarshal(e.Payload, &intent))
		out = append(out, intent)
	}
	return out
}

func (o *recordingOutbox) notifications(t *testing.T) []models.NotificationIntent {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []models.NotificationIntent
	for _, e := range o.events {
		if e.Kind != models.OutboxKindNotification {
			continue
		}
		var intent models.NotificationIntent
		require.NoError(t, json.Unmarshal(e.Payload, &intent))
		out = append(out, intent)
	}
	return out
}

// memoryDB backs the in-memory repositories used by workflow service tests.
type memoryDB struct {
	mu          sync.Mutex
	clearances  map[string]models.Clearance
	entries     map[string][]models.ApprovalEntry
	departments map[string]models.Department
	users       map[string]models.User
	documents   map[string]int
	updateErr   error
}

func newMemoryDB(departments ...models.Department) *memoryDB {
	db := &memoryDB{
		clearances:  map[string]models.Clearance{},
		entries:     map[string][]models.ApprovalEntry{},
		departments: map[string]models.Department{},
		users:       map[string]models.User{},
		documents:   map[string]int{},
	}
	for _, d := range departments {
		db.departments[d.ID] = d
	}
	return db
}

func (m *memoryDB) registry(t *testing.T) *workflow.Registry {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]models.Department, 0, len(m.departments))
	for _, d := range m.departments {
		list = append(list, d)
	}
	reg, err := workflow.NewRegistry(list)
	require.NoError(t, err)
	return reg
}

func (m *memoryDB) clearance(id string) models.Clearance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearances[id]
}

type memClearances struct{ db *memoryDB }

func (r memClearances) FindByID(ctx context.Context, id string) (*models.Clearance, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.clearances[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (r memClearances) FindByStudent(ctx context.Context, studentID string) (*models.Clearance, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, c := range r.db.clearances {
		if c.StudentID == studentID {
			c := c
			return &c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r memClearances) GetForUpdate(ctx context.Context, tx sqlx.ExtContext, id string) (*models.Clearance, error) {
	return r.FindByID(ctx, id)
}

func (r memClearances) GetByStudentForUpdate(ctx context.Context, tx sqlx.ExtContext, studentID string) (*models.Clearance, error) {
	return r.FindByStudent(ctx, studentID)
}

func (r memClearances) Update(ctx context.Context, exec sqlx.ExtContext, c *models.Clearance) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.updateErr != nil {
		return r.db.updateErr
	}
	stored, ok := r.db.clearances[c.ID]
	if !ok || stored.Version != c.Version {
		return repository.ErrVersionConflict
	}
	c.Version++
	c.UpdatedAt = time.Now().UTC()
	r.db.clearances[c.ID] = *c
	return nil
}

type memApprovals struct{ db *memoryDB }

func (r memApprovals) CreateIfAbsent(ctx context.Context, exec sqlx.ExtContext, entry *models.ApprovalEntry) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, e := range r.db.entries[entry.ClearanceID] {
		if e.DepartmentID == entry.DepartmentID {
			return false, nil
		}
	}
	r.db.entries[entry.ClearanceID] = append(r.db.entries[entry.ClearanceID], *entry)
	return true, nil
}

func (r memApprovals) ListByClearance(ctx context.Context, exec sqlx.ExtContext, clearanceID string) ([]models.ApprovalView, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	views := make([]models.ApprovalView, 0, len(r.db.entries[clearanceID]))
	for _, e := range r.db.entries[clearanceID] {
		d := r.db.departments[e.DepartmentID]
		views = append(views, models.ApprovalView{ApprovalEntry: e, DepartmentName: d.Name, SequenceOrder: d.SequenceOrder})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].SequenceOrder < views[j].SequenceOrder })
	return views, nil
}

func (r memApprovals) UpdateDecision(ctx context.Context, exec sqlx.ExtContext, entry *models.ApprovalEntry) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	list := r.db.entries[entry.ClearanceID]
	for i := range list {
		if list[i].ID != entry.ID {
			continue
		}
		if list[i].Decision != models.DecisionPending {
			return repository.ErrEntryNotPending
		}
		list[i] = *entry
		return nil
	}
	return repository.ErrEntryNotPending
}

func (r memApprovals) ResetToPending(ctx context.Context, exec sqlx.ExtContext, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for cid, list := range r.db.entries {
		for i := range list {
			if list[i].ID == id {
				list[i].Decision = models.DecisionPending
				list[i].ReviewerID = nil
				list[i].Comment = ""
				list[i].DecidedAt = nil
				r.db.entries[cid] = list
				return nil
			}
		}
	}
	return sql.ErrNoRows
}

func (r memApprovals) DeleteByClearance(ctx context.Context, exec sqlx.ExtContext, clearanceID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.entries, clearanceID)
	return nil
}

type memDocuments struct{ db *memoryDB }

func (r memDocuments) CountByClearance(ctx context.Context, exec sqlx.ExtContext, clearanceID string) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.documents[clearanceID], nil
}

func (r memDocuments) Views(ctx context.Context, clearanceID string) ([]dto.DocumentView, error) {
	n, _ := r.CountByClearance(ctx, nil, clearanceID)
	views := make([]dto.DocumentView, n)
	for i := range views {
		views[i].ClearanceID = clearanceID
		views[i].Kind = models.DocumentFeeReceipt
	}
	return views, nil
}

type memUsers struct{ db *memoryDB }

func (r memUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

type memDepartments struct{ db *memoryDB }

func (r memDepartments) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Department, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	d, ok := r.db.departments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &d, nil
}

type staticRegistry struct {
	reg *workflow.Registry
	err error
}

func (s staticRegistry) Registry(ctx context.Context) (*workflow.Registry, error) {
	return s.reg, s.err
}

var errBoom = errors.New("boom")

func strPtr(v string) *string { return &v }
