package mailer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/pkg/config"
)

func TestNewPicksDriver(t *testing.T) {
	_, isLog := New(config.MailConfig{Driver: config.MailDriverLog}, nil).(*LogMailer)
	assert.True(t, isLog)

	_, isLog = New(config.MailConfig{Driver: config.MailDriverSMTP}, nil).(*LogMailer)
	assert.True(t, isLog, "smtp without host falls back to log")

	_, isSMTP := New(config.MailConfig{Driver: config.MailDriverSMTP, Host: "smtp.example"}, nil).(*SMTPMailer)
	assert.True(t, isSMTP)
}

func TestSMTPMailerSend(t *testing.T) {
	cfg := config.MailConfig{Host: "smtp.example", Port: 587, User: "u", Password: "p", From: "registrar@acu.edu.ng", SubjectPrefix: "[ACU]"}
	m := NewSMTPMailer(cfg, zap.NewNop())
	m.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	var gotAddr, gotFrom string
	var gotTo []string
	var gotBody string
	var gotAuth sasl.Client
	m.send = func(addr string, a sasl.Client, from string, to []string, r *bytes.Reader) error {
		gotAddr, gotFrom, gotTo, gotAuth = addr, from, to, a
		raw, _ := io.ReadAll(r)
		gotBody = string(raw)
		return nil
	}

	err := m.Send(context.Background(), Message{To: "student@acu.edu.ng", Subject: "Clearance Approved", Body: "Dear Ada,\nCongratulations."})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example:587", gotAddr)
	assert.Equal(t, "registrar@acu.edu.ng", gotFrom)
	assert.Equal(t, []string{"student@acu.edu.ng"}, gotTo)
	assert.NotNil(t, gotAuth)
	assert.Contains(t, gotBody, "Subject: [ACU] Clearance Approved\r\n")
	assert.Contains(t, gotBody, "Dear Ada,\r\nCongratulations.")
	assert.True(t, strings.HasPrefix(gotBody, "From: registrar@acu.edu.ng\r\n"))
}

func TestSMTPMailerSendError(t *testing.T) {
	m := NewSMTPMailer(config.MailConfig{Host: "smtp.example", Port: 25}, zap.NewNop())
	m.send = func(addr string, a sasl.Client, from string, to []string, r *bytes.Reader) error {
		return errors.New("relay denied")
	}
	err := m.Send(context.Background(), Message{To: "x@y.z", Subject: "s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay denied")

	assert.Error(t, m.Send(context.Background(), Message{Subject: "no recipient"}))
}

func TestSanitizeHeader(t *testing.T) {
	assert.Equal(t, "a  b", sanitizeHeader("a\r\nb"))
}
