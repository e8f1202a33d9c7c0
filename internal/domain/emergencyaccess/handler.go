package emergencyaccess

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/emrchain/custody/internal/platform/auth"
	"github.com/emrchain/custody/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Requesting and reading records is for clinical staff.
	clinical := api.Group("", auth.RequireRole("doctor", "emergency_doctor", "nurse"))
	clinical.POST("/emergency-access", h.Request)
	clinical.GET("/emergency-access/:id/records/:recordId", h.AccessRecord)

	// History and lookups are open to clinicians, supervisors and security.
	read := api.Group("", auth.RequireRole("doctor", "emergency_doctor", "nurse", "supervisor", "security_admin"))
	read.GET("/emergency-access", h.History)
	read.GET("/emergency-access/:id", h.Get)

	// Approval and revocation need supervisory authority.
	supervise := api.Group("", auth.RequireRole("supervisor"))
	supervise.POST("/emergency-access/:id/approve", h.Approve)
	supervise.POST("/emergency-access/:id/revoke", h.Revoke)
}

func clientInfo(c echo.Context) ClientInfo {
	return ClientInfo{
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}

// httpError maps domain errors onto transport status codes.
func httpError(err error) error {
	var (
		validation *ValidationError
		authn      *AuthenticationError
		notFound   *NotFoundError
		state      *InvalidStateError
		expired    *ExpiredAccessError
		conflict   *ConcurrencyConflictError
	)
	switch {
	case errors.As(err, &validation):
		return echo.NewHTTPError(http.StatusBadRequest, validation.Error())
	case errors.As(err, &authn):
		return echo.NewHTTPError(http.StatusUnauthorized, authn.Error())
	case errors.As(err, &notFound):
		return echo.NewHTTPError(http.StatusNotFound, notFound.Error())
	case errors.As(err, &state):
		return echo.NewHTTPError(http.StatusConflict, state.Error())
	case errors.As(err, &expired):
		return echo.NewHTTPError(http.StatusGone, expired.Error())
	case errors.As(err, &conflict):
		return echo.NewHTTPError(http.StatusConflict, conflict.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) Request(c echo.Context) error {
	var req AccessRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	// The authenticated subject is the requester; the body value is only
	// honored when no parseable subject is present (dev mode).
	if uid, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context())); err == nil {
		req.RequesterID = uid
	}
	result, err := h.svc.RequestAccess(c.Request().Context(), &req, clientInfo(c))
	if err != nil {
		return httpError(err)
	}
	if result.Existing {
		return c.JSON(http.StatusOK, result.Record)
	}
	return c.JSON(http.StatusCreated, result.Record)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) History(c echo.Context) error {
	pg := pagination.FromContext(c)

	var filter HistoryFilter
	if v := c.QueryParam("requester_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid requester_id")
		}
		filter.RequesterID = &id
	}
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		filter.PatientID = &id
	}
	if v := c.QueryParam("status"); v != "" {
		st := Status(v)
		if !st.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		filter.Status = &st
	}

	items, total, err := h.svc.History(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Approve(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	supervisorID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unknown supervisor identity")
	}
	var decision ApprovalDecision
	if err := c.Bind(&decision); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.svc.Approve(c.Request().Context(), id, supervisorID, decision)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Revoke(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	revokerID, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unknown revoker identity")
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := h.svc.Revoke(c.Request().Context(), id, revokerID, body.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) AccessRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	recordID, err := uuid.Parse(c.Param("recordId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}
	content, err := h.svc.AccessRecordContent(c.Request().Context(), id, recordID, clientInfo(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, content)
}
