package workflow

import (
	"errors"
	"fmt"
	"sort"

	"github.com/noah-isme/clearance-api/internal/models"
)

// ErrDuplicateOrder is returned when two active departments share a sequence order.
var ErrDuplicateOrder = errors.New("duplicate department sequence order")

// Registry is an immutable, ordered snapshot of the active review stages.
type Registry struct {
	stages []models.Department
	index  map[string]int
}

// NewRegistry keeps the active departments, sorts them by sequence order and
// rejects duplicate orders.
func NewRegistry(departments []models.Department) (*Registry, error) {
	stages := make([]models.Department, 0, len(departments))
	for _, d := range departments {
		if d.Active {
			stages = append(stages, d)
		}
	}
	sort.SliceStable(stages, func(i, j int) bool {
		return stages[i].SequenceOrder < stages[j].SequenceOrder
	})
	index := make(map[string]int, len(stages))
	for i, d := range stages {
		if i > 0 && stages[i-1].SequenceOrder == d.SequenceOrder {
			return nil, fmt.Errorf("%w: %d (%s, %s)", ErrDuplicateOrder, d.SequenceOrder, stages[i-1].Name, d.Name)
		}
		if _, dup := index[d.ID]; dup {
			return nil, fmt.Errorf("department %s listed twice", d.ID)
		}
		index[d.ID] = i
	}
	return &Registry{stages: stages, index: index}, nil
}

// ListActiveOrdered returns a copy of the stages in ascending order.
func (r *Registry) ListActiveOrdered() []models.Department {
	out := make([]models.Department, len(r.stages))
	copy(out, r.stages)
	return out
}

// Len is the number of active stages.
func (r *Registry) Len() int {
	return len(r.stages)
}

// First returns the entry stage.
func (r *Registry) First() (models.Department, bool) {
	if len(r.stages) == 0 {
		return models.Department{}, false
	}
	return r.stages[0], true
}

// Contains reports whether id is an active stage.
func (r *Registry) Contains(id string) bool {
	_, ok := r.index[id]
	return ok
}

// Get looks up an active stage by id.
func (r *Registry) Get(id string) (models.Department, bool) {
	i, ok := r.index[id]
	if !ok {
		return models.Department{}, false
	}
	return r.stages[i], true
}

// NextAfter returns the active stage with the smallest order strictly greater
// than d's. The lookup uses d.SequenceOrder only, so an inactive department
// still resolves to the next active one.
func (r *Registry) NextAfter(d models.Department) (models.Department, bool) {
	i := sort.Search(len(r.stages), func(i int) bool {
		return r.stages[i].SequenceOrder > d.SequenceOrder
	})
	if i == len(r.stages) {
		return models.Department{}, false
	}
	return r.stages[i], true
}

// Insert returns a new registry with d added or replaced.
func (r *Registry) Insert(d models.Department) (*Registry, error) {
	next := make([]models.Department, 0, len(r.stages)+1)
	for _, s := range r.stages {
		if s.ID != d.ID {
			next = append(next, s)
		}
	}
	next = append(next, d)
	return NewRegistry(next)
}

// Reorder returns a new registry with the given id → order assignments applied.
func (r *Registry) Reorder(orders map[string]int) (*Registry, error) {
	next := r.ListActiveOrdered()
	for id := range orders {
		if !r.Contains(id) {
			return nil, fmt.Errorf("department %s is not an active stage", id)
		}
	}
	for i := range next {
		if order, ok := orders[next[i].ID]; ok {
			next[i].SequenceOrder = order
		}
	}
	return NewRegistry(next)
}
