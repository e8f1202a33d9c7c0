package emergencyaccess

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusApproved},
		{StatusPending, StatusDenied},
		{StatusApproved, StatusRevoked},
		{StatusApproved, StatusExpired},
	}
	for _, tr := range allowed {
		if !tr.from.CanTransition(tr.to) {
			t.Errorf("%s -> %s must be allowed", tr.from, tr.to)
		}
	}

	forbidden := []struct{ from, to Status }{
		{StatusPending, StatusExpired},
		{StatusPending, StatusRevoked},
		{StatusApproved, StatusDenied},
		{StatusApproved, StatusPending},
		{StatusDenied, StatusApproved},
		{StatusExpired, StatusApproved},
		{StatusRevoked, StatusApproved},
	}
	for _, tr := range forbidden {
		if tr.from.CanTransition(tr.to) {
			t.Errorf("%s -> %s must be rejected", tr.from, tr.to)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{StatusDenied, StatusExpired, StatusRevoked} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusApproved} {
		if s.Terminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
}

func TestAccessRecordActive(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)

	cases := []struct {
		name   string
		status Status
		expiry time.Time
		want   bool
	}{
		{"pending before expiry", StatusPending, later, true},
		{"approved before expiry", StatusApproved, later, true},
		{"approved past expiry", StatusApproved, earlier, false},
		{"denied", StatusDenied, later, false},
		{"revoked", StatusRevoked, later, false},
		{"expired", StatusExpired, later, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &AccessRecord{Status: tc.status, ExpiryTime: tc.expiry}
			if got := rec.Active(now); got != tc.want {
				t.Errorf("Active() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDistinctAccessedRecords(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	rec := &AccessRecord{AccessedRecords: []uuid.UUID{a, b, a, a, b}}
	if got := rec.DistinctAccessedRecords(); got != 2 {
		t.Errorf("DistinctAccessedRecords() = %d, want 2", got)
	}

	empty := &AccessRecord{}
	if got := empty.DistinctAccessedRecords(); got != 0 {
		t.Errorf("DistinctAccessedRecords() = %d, want 0", got)
	}
}
