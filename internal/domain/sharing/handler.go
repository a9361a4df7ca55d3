package sharing

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medishare/medishare/internal/platform/auth"
	"github.com/medishare/medishare/internal/platform/db"
	"github.com/medishare/medishare/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes wires the staff API group and the anonymous access group.
// The anonymous group carries no authentication on purpose; it is the one
// public entry point and should sit behind the tighter rate limit.
func (h *Handler) RegisterRoutes(api *echo.Group, public *echo.Group) {
	staff := api.Group("/shares", auth.RequireRole("admin", "physician", "nurse"))
	staff.POST("", h.CreateShare)
	staff.GET("", h.ListShares)
	staff.GET("/:id", h.GetShare)
	staff.DELETE("/:id", h.RevokeShare)

	public.GET("/shared/:token", h.AccessShare)
}

type createShareRequest struct {
	PatientID       string         `json:"patient_id"`
	Scope           Scope          `json:"scope"`
	CustomResources []ResourceKind `json:"custom_resources,omitempty"`
	RecipientEmail  *string        `json:"recipient_email,omitempty"`
	RecipientName   *string        `json:"recipient_name,omitempty"`
	ExpiresInHours  int            `json:"expires_in_hours"`
	MaxAccessCount  *int           `json:"max_access_count,omitempty"`
	RequirePin      bool           `json:"require_pin"`
	Purpose         *string        `json:"purpose,omitempty"`
	Notes           *string        `json:"notes,omitempty"`
	ConsentGiven    bool           `json:"consent_given"`
	ConsentDate     *time.Time     `json:"consent_date,omitempty"`
}

func (h *Handler) CreateShare(c echo.Context) error {
	var req createShareRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}

	result, err := h.svc.Create(c.Request().Context(), CreateInput{
		TenantID:        db.TenantFromContext(c.Request().Context()),
		ActingUserID:    auth.UserIDFromContext(c.Request().Context()),
		PatientID:       patientID,
		Scope:           req.Scope,
		CustomResources: req.CustomResources,
		RecipientEmail:  req.RecipientEmail,
		RecipientName:   req.RecipientName,
		ExpiresInHours:  req.ExpiresInHours,
		MaxAccessCount:  req.MaxAccessCount,
		RequirePin:      req.RequirePin,
		Purpose:         req.Purpose,
		Notes:           req.Notes,
		ConsentGiven:    req.ConsentGiven,
		ConsentDate:     req.ConsentDate,
	})
	if err != nil {
		return staffError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) ListShares(c echo.Context) error {
	ctx := c.Request().Context()
	p := pagination.FromContext(c)

	var patientID *uuid.UUID
	if raw := c.QueryParam("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		patientID = &id
	}
	activeOnly := c.QueryParam("active_only") == "true"

	shares, total, err := h.svc.List(ctx, db.TenantFromContext(ctx), auth.UserIDFromContext(ctx), patientID, activeOnly, p.Limit, p.Offset)
	if err != nil {
		return staffError(err)
	}
	if shares == nil {
		shares = []*Share{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(shares, total, p.Limit, p.Offset))
}

func (h *Handler) GetShare(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	ctx := c.Request().Context()
	share, err := h.svc.Get(ctx, db.TenantFromContext(ctx), auth.UserIDFromContext(ctx), id, isElevated(ctx))
	if err != nil {
		return staffError(err)
	}
	return c.JSON(http.StatusOK, share)
}

func (h *Handler) RevokeShare(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	ctx := c.Request().Context()
	if _, err := h.svc.Revoke(ctx, db.TenantFromContext(ctx), auth.UserIDFromContext(ctx), id, isElevated(ctx)); err != nil {
		return staffError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AccessShare is the anonymous redemption endpoint. Failures carry no detail
// at all: the caller cannot tell a bad token from a bad PIN or an expired
// share.
func (h *Handler) AccessShare(c echo.Context) error {
	token := c.Param("token")
	pin := c.QueryParam("pin")
	if pin == "" {
		pin = c.Request().Header.Get("X-Access-Pin")
	}

	view, err := h.svc.Access(c.Request().Context(), token, pin, c.RealIP())
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound)
		case errors.Is(err, ErrForbidden):
			return echo.NewHTTPError(http.StatusForbidden)
		}
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, view)
}

// staffError maps service errors for authenticated callers, who do get a
// message.
func staffError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "share not found")
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func isElevated(ctx context.Context) bool {
	for _, role := range auth.RolesFromContext(ctx) {
		if role == "admin" {
			return true
		}
	}
	return false
}
