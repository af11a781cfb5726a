package insurance

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sprouthealth/intake/internal/domain/auditevent"
	"github.com/sprouthealth/intake/internal/platform/payers"
)

type Handler struct {
	svc   *Service
	audit *auditevent.Service
}

func NewHandler(svc *Service, audit *auditevent.Service) *Handler {
	return &Handler{svc: svc, audit: audit}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/insurance", h.Create)
	api.GET("/insurance/:id", h.Get)

	api.POST("/insurance/:id/ocr/begin", h.BeginOCR)
	api.POST("/insurance/:id/ocr/complete", h.CompleteOCR)
	api.POST("/insurance/:id/manual-entry/begin", h.BeginManualEntry)
	api.PUT("/insurance/:id/manual-entry", h.CompleteManualEntry)

	api.POST("/insurance/:id/verify", h.Verify)
	api.POST("/insurance/:id/retry", h.Retry)
	api.POST("/insurance/:id/self-pay", h.ElectSelfPay)
	api.POST("/insurance/:id/retry-attempts/reset", h.ResetRetryAttempts)

	api.GET("/insurance/:id/audit", h.AuditTrail)
	api.GET("/payers", h.ListPayers)
}

func (h *Handler) Create(c echo.Context) error {
	var rec InsuranceRecord
	if err := c.Bind(&rec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), &rec); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rec)
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

func (h *Handler) BeginOCR(c echo.Context) error {
	return h.statusAction(c, h.svc.BeginOCR)
}

func (h *Handler) CompleteOCR(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		NeedsReview bool `json:"needs_review"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CompleteOCR(c.Request().Context(), id, body.NeedsReview); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) BeginManualEntry(c echo.Context) error {
	return h.statusAction(c, h.svc.BeginManualEntry)
}

func (h *Handler) CompleteManualEntry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var entry ManualEntry
	if err := c.Bind(&entry); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CompleteManualEntry(c.Request().Context(), id, entry); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Verify(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	result, err := h.svc.RequestVerification(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Retry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	result, err := h.svc.Retry(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ElectSelfPay(c echo.Context) error {
	return h.statusAction(c, h.svc.ElectSelfPay)
}

func (h *Handler) ResetRetryAttempts(c echo.Context) error {
	return h.statusAction(c, h.svc.ResetRetryAttempts)
}

func (h *Handler) AuditTrail(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	events, total, err := h.audit.ListByInsurance(c.Request().Context(), id, 100, 0)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"total":  total,
		"events": events,
	})
}

func (h *Handler) ListPayers(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"payers": payers.All()})
}

func (h *Handler) statusAction(c echo.Context, fn func(ctx context.Context, id uuid.UUID) error) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := fn(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrVerificationNotAllowed),
		errors.Is(err, ErrRetryNotAllowed),
		errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnknownPayer):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}
