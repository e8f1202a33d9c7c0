// Package notification delivers best-effort alerts for the emergency
// access workflow: supervisor review requests, revocation notices, and
// high-risk security alerts. Delivery failures are recorded and logged,
// never propagated into the triggering operation.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/emrchain/custody/internal/platform/directory"
)

// Channel is the delivery mechanism for a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Notification is one outbound message and its delivery outcome.
type Notification struct {
	ID        uuid.UUID  `json:"id"`
	Channel   Channel    `json:"channel"`
	Recipient string     `json:"recipient"`
	Role      string     `json:"role,omitempty"`
	Subject   string     `json:"subject"`
	Body      string     `json:"body"`
	Status    string     `json:"status"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}

// EmailSender delivers email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Manager fans notifications out to role groups and individual users,
// resolving recipients through the user directory. Sent and failed
// notifications are kept in memory for inspection.
type Manager struct {
	email  EmailSender
	dir    directory.Directory
	logger zerolog.Logger

	mu   sync.RWMutex
	sent []*Notification
}

func NewManager(email EmailSender, dir directory.Directory, logger zerolog.Logger) *Manager {
	return &Manager{email: email, dir: dir, logger: logger}
}

// SendToRole delivers a message to every active user holding the role.
// Per-recipient failures are recorded; the first failure is returned after
// all recipients have been attempted.
func (m *Manager) SendToRole(ctx context.Context, role, subject, body string) error {
	emails, err := m.dir.EmailsForRole(ctx, role)
	if err != nil {
		return fmt.Errorf("resolve %s recipients: %w", role, err)
	}
	if len(emails) == 0 {
		return fmt.Errorf("no active recipients for role %q", role)
	}

	var firstErr error
	for _, addr := range emails {
		if err := m.deliver(ctx, addr, role, subject, body); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SendToUser delivers a message to a single user resolved by id.
func (m *Manager) SendToUser(ctx context.Context, userID uuid.UUID, subject, body string) error {
	u, err := m.dir.Resolve(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve recipient %s: %w", userID, err)
	}
	return m.deliver(ctx, u.Email, "", subject, body)
}

func (m *Manager) deliver(ctx context.Context, addr, role, subject, body string) error {
	n := &Notification{
		ID:        uuid.New(),
		Channel:   ChannelEmail,
		Recipient: addr,
		Role:      role,
		Subject:   subject,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}

	err := m.email.SendEmail(ctx, addr, subject, body)
	if err != nil {
		n.Status = "failed"
		n.Error = err.Error()
		m.logger.Warn().Err(err).Str("recipient", addr).Str("subject", subject).
			Msg("notification delivery failed")
	} else {
		n.Status = "sent"
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
	}

	m.mu.Lock()
	m.sent = append(m.sent, n)
	m.mu.Unlock()

	return err
}

// History returns a copy of all notifications attempted so far.
func (m *Manager) History() []*Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Notification, len(m.sent))
	copy(out, m.sent)
	return out
}

// Stats returns notification counts grouped by delivery status.
func (m *Manager) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := make(map[string]int)
	for _, n := range m.sent {
		stats[n.Status]++
	}
	return stats
}

// ---------------------------------------------------------------------------
// Senders
// ---------------------------------------------------------------------------

// LogSender writes messages to the structured log instead of delivering
// them. It stands in for a real SMTP gateway in development.
type LogSender struct {
	Logger zerolog.Logger
}

func (s *LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.Logger.Info().Str("to", to).Str("subject", subject).Str("body", body).Msg("email (log sender)")
	return nil
}

func (s *LogSender) SendSMS(_ context.Context, to, body string) error {
	s.Logger.Info().Str("to", to).Str("body", body).Msg("sms (log sender)")
	return nil
}

// EmailCall records one call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}
