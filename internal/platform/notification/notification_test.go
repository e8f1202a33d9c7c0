package notification

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/emrchain/custody/internal/platform/directory"
)

type stubDirectory struct {
	users map[uuid.UUID]*directory.User
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{users: make(map[uuid.UUID]*directory.User)}
}

func (s *stubDirectory) add(role, email string) uuid.UUID {
	id := uuid.New()
	s.users[id] = &directory.User{ID: id, Name: email, Role: role, Email: email, Active: true}
	return id
}

func (s *stubDirectory) Resolve(_ context.Context, id uuid.UUID) (*directory.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return u, nil
}

func (s *stubDirectory) EmailsForRole(_ context.Context, role string) ([]string, error) {
	var emails []string
	for _, u := range s.users {
		if u.Role == role {
			emails = append(emails, u.Email)
		}
	}
	return emails, nil
}

func TestSendToRole_FansOut(t *testing.T) {
	dir := newStubDirectory()
	dir.add("supervisor", "alice@hospital.test")
	dir.add("supervisor", "bob@hospital.test")
	dir.add("nurse", "carol@hospital.test")

	sender := &MockEmailSender{}
	mgr := NewManager(sender, dir, zerolog.Nop())

	if err := mgr.SendToRole(context.Background(), "supervisor", "Review needed", "body"); err != nil {
		t.Fatalf("SendToRole: %v", err)
	}
	if got := len(sender.Calls()); got != 2 {
		t.Errorf("emails sent = %d, want 2", got)
	}
	for _, call := range sender.Calls() {
		if call.To == "carol@hospital.test" {
			t.Error("nurse must not receive supervisor notifications")
		}
	}
}

func TestSendToRole_NoRecipients(t *testing.T) {
	mgr := NewManager(&MockEmailSender{}, newStubDirectory(), zerolog.Nop())

	if err := mgr.SendToRole(context.Background(), "supervisor", "s", "b"); err == nil {
		t.Fatal("expected error when role has no recipients")
	}
}

func TestSendToUser(t *testing.T) {
	dir := newStubDirectory()
	id := dir.add("doctor", "dave@hospital.test")

	sender := &MockEmailSender{}
	mgr := NewManager(sender, dir, zerolog.Nop())

	if err := mgr.SendToUser(context.Background(), id, "Access approved", "body"); err != nil {
		t.Fatalf("SendToUser: %v", err)
	}
	calls := sender.Calls()
	if len(calls) != 1 || calls[0].To != "dave@hospital.test" {
		t.Errorf("calls = %v, want one to dave", calls)
	}
}

func TestSendToUser_UnknownRecipient(t *testing.T) {
	mgr := NewManager(&MockEmailSender{}, newStubDirectory(), zerolog.Nop())

	if err := mgr.SendToUser(context.Background(), uuid.New(), "s", "b"); err == nil {
		t.Fatal("expected error for unknown recipient")
	}
}

func TestDeliveryFailureRecorded(t *testing.T) {
	dir := newStubDirectory()
	dir.add("supervisor", "alice@hospital.test")

	sender := &MockEmailSender{ShouldFail: true, FailError: "smtp timeout"}
	mgr := NewManager(sender, dir, zerolog.Nop())

	if err := mgr.SendToRole(context.Background(), "supervisor", "s", "b"); err == nil {
		t.Fatal("expected delivery error")
	}

	history := mgr.History()
	if len(history) != 1 {
		t.Fatalf("history entries = %d, want 1", len(history))
	}
	if history[0].Status != "failed" || history[0].Error != "smtp timeout" {
		t.Errorf("entry = %+v, want failed with smtp timeout", history[0])
	}
	if got := mgr.Stats()["failed"]; got != 1 {
		t.Errorf("failed count = %d, want 1", got)
	}
}

func TestStats(t *testing.T) {
	dir := newStubDirectory()
	id := dir.add("doctor", "dave@hospital.test")

	mgr := NewManager(&MockEmailSender{}, dir, zerolog.Nop())
	for i := 0; i < 3; i++ {
		if err := mgr.SendToUser(context.Background(), id, "s", "b"); err != nil {
			t.Fatalf("SendToUser: %v", err)
		}
	}
	if got := mgr.Stats()["sent"]; got != 3 {
		t.Errorf("sent count = %d, want 3", got)
	}
}
