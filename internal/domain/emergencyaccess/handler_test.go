package emergencyaccess

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/emrchain/custody/internal/platform/auth"
)

func newTestContext(method, path, body string, userID uuid.UUID) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	ctx := req.Context()
	ctx = context.WithValue(ctx, auth.UserIDKey, userID.String())
	ctx = context.WithValue(ctx, auth.UserRolesKey, []string{"doctor"})
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func handlerFixture(t *testing.T) (*Handler, *fixture) {
	t.Helper()
	f := newFixture(t)
	return NewHandler(f.svc), f
}

func TestHandlerRequest_Created(t *testing.T) {
	h, f := handlerFixture(t)
	doctor := f.dir.addUser("emergency_doctor")
	patient := f.dir.addUser("patient")
	recordID := f.recs.addRecord(patient, false)

	body, _ := json.Marshal(criticalRequest(doctor, patient, recordID))
	c, rec := newTestContext(http.MethodPost, "/api/v1/emergency-access", string(body), doctor)

	if err := h.Request(c); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var got AccessRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Status != StatusApproved {
		t.Errorf("status = %s, want approved", got.Status)
	}
}

func TestHandlerRequest_RepeatReturns200(t *testing.T) {
	h, f := handlerFixture(t)
	doctor := f.dir.addUser("emergency_doctor")
	patient := f.dir.addUser("patient")
	recordID := f.recs.addRecord(patient, false)

	body, _ := json.Marshal(criticalRequest(doctor, patient, recordID))
	c, rec := newTestContext(http.MethodPost, "/api/v1/emergency-access", string(body), doctor)
	if err := h.Request(c); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("first status = %d, want 201", rec.Code)
	}

	c, rec = newTestContext(http.MethodPost, "/api/v1/emergency-access", string(body), doctor)
	if err := h.Request(c); err != nil {
		t.Fatalf("second request: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("repeat status = %d, want 200", rec.Code)
	}
}

func TestHandlerRequest_ValidationMapsTo400(t *testing.T) {
	h, f := handlerFixture(t)
	doctor := f.dir.addUser("doctor")

	body := `{"patient_id":"` + uuid.NewString() + `","record_id":"` + uuid.NewString() + `","urgency":"high"}`
	c, _ := newTestContext(http.MethodPost, "/api/v1/emergency-access", body, doctor)

	err := h.Request(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("err = %v, want *echo.HTTPError", err)
	}
	if httpErr.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", httpErr.Code)
	}
}

func TestHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"validation", &ValidationError{Field: "urgency", Reason: "bad"}, http.StatusBadRequest},
		{"authentication", &AuthenticationError{UserID: uuid.New(), Reason: "unknown"}, http.StatusUnauthorized},
		{"not found", &NotFoundError{Kind: "patient", ID: uuid.New()}, http.StatusNotFound},
		{"invalid state", &InvalidStateError{Current: StatusDenied, Op: "approve"}, http.StatusConflict},
		{"expired", &ExpiredAccessError{AccessID: uuid.New()}, http.StatusGone},
		{"conflict", &ConcurrencyConflictError{}, http.StatusConflict},
		{"infrastructure", &InfrastructureError{Op: "query"}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := httpError(tc.err)
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("httpError returned %T, want *echo.HTTPError", err)
			}
			if httpErr.Code != tc.code {
				t.Errorf("code = %d, want %d", httpErr.Code, tc.code)
			}
		})
	}
}

func TestHandlerApprove(t *testing.T) {
	h, f := handlerFixture(t)
	rec, _ := pendingGrant(t, f)
	supervisor := f.dir.addUser("supervisor")

	c, resp := newTestContext(http.MethodPost, "/api/v1/emergency-access/"+rec.ID.String()+"/approve",
		`{"approved":true}`, supervisor)
	c.SetParamNames("id")
	c.SetParamValues(rec.ID.String())

	if err := h.Approve(c); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
	var got AccessRecord
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Status != StatusApproved {
		t.Errorf("status = %s, want approved", got.Status)
	}
}

func TestHandlerApprove_InvalidID(t *testing.T) {
	h, f := handlerFixture(t)
	supervisor := f.dir.addUser("supervisor")

	c, _ := newTestContext(http.MethodPost, "/api/v1/emergency-access/nope/approve", `{"approved":true}`, supervisor)
	c.SetParamNames("id")
	c.SetParamValues("nope")

	err := h.Approve(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400", err)
	}
}

func TestHandlerRevoke(t *testing.T) {
	h, f := handlerFixture(t)
	rec := approvedGrant(t, f)
	supervisor := f.dir.addUser("supervisor")

	c, resp := newTestContext(http.MethodPost, "/api/v1/emergency-access/"+rec.ID.String()+"/revoke",
		`{"reason":"patient complaint"}`, supervisor)
	c.SetParamNames("id")
	c.SetParamValues(rec.ID.String())

	if err := h.Revoke(c); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
	var got AccessRecord
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Status != StatusRevoked {
		t.Errorf("status = %s, want revoked", got.Status)
	}
}

func TestHandlerAccessRecord(t *testing.T) {
	h, f := handlerFixture(t)
	rec := approvedGrant(t, f)

	c, resp := newTestContext(http.MethodGet,
		"/api/v1/emergency-access/"+rec.ID.String()+"/records/"+rec.RecordID.String(), "", rec.RequesterID)
	c.SetParamNames("id", "recordId")
	c.SetParamValues(rec.ID.String(), rec.RecordID.String())

	if err := h.AccessRecord(c); err != nil {
		t.Fatalf("AccessRecord: %v", err)
	}
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
}

func TestHandlerAccessRecord_ExpiredMapsTo410(t *testing.T) {
	h, f := handlerFixture(t)
	rec := approvedGrant(t, f)
	f.advance(2 * time.Hour)

	c, _ := newTestContext(http.MethodGet,
		"/api/v1/emergency-access/"+rec.ID.String()+"/records/"+rec.RecordID.String(), "", rec.RequesterID)
	c.SetParamNames("id", "recordId")
	c.SetParamValues(rec.ID.String(), rec.RecordID.String())

	err := h.AccessRecord(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusGone {
		t.Fatalf("err = %v, want 410", err)
	}
}

func TestHandlerHistory(t *testing.T) {
	h, f := handlerFixture(t)
	rec := approvedGrant(t, f)

	c, resp := newTestContext(http.MethodGet,
		"/api/v1/emergency-access?requester_id="+rec.RequesterID.String(), "", rec.RequesterID)

	if err := h.History(c); err != nil {
		t.Fatalf("History: %v", err)
	}
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
	var body struct {
		Data  []*AccessRecord `json:"data"`
		Total int             `json:"total"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Total != 1 || len(body.Data) != 1 {
		t.Errorf("total = %d, items = %d, want 1 each", body.Total, len(body.Data))
	}
}

func TestHandlerHistory_BadStatusFilter(t *testing.T) {
	h, f := handlerFixture(t)
	doctor := f.dir.addUser("doctor")

	c, _ := newTestContext(http.MethodGet, "/api/v1/emergency-access?status=frozen", "", doctor)

	err := h.History(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400", err)
	}
}

func TestHandlerGet_NotFound(t *testing.T) {
	h, f := handlerFixture(t)
	doctor := f.dir.addUser("doctor")
	id := uuid.New()

	c, _ := newTestContext(http.MethodGet, "/api/v1/emergency-access/"+id.String(), "", doctor)
	c.SetParamNames("id")
	c.SetParamValues(id.String())

	err := h.Get(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("err = %v, want 404", err)
	}
}
