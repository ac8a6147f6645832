package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/herhealth/clinic/internal/domain/calendar"
	"github.com/herhealth/clinic/internal/platform/auth"
	"github.com/herhealth/clinic/internal/platform/db"
	"github.com/herhealth/clinic/pkg/wallclock"
)

// TokenHeader carries the OAuth2 token JSON returned by the callback.
const TokenHeader = "X-Google-Token"

// Authorizer runs the Google consent flow.
type Authorizer interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// ExceptionStore persists imported exceptions on a clinic calendar.
type ExceptionStore interface {
	ImportExceptions(ctx context.Context, calendarID uuid.UUID, incoming []*calendar.Exception) (int, error)
}

type Handler struct {
	auth     Authorizer
	importer *Importer
	store    ExceptionStore
}

func NewHandler(a Authorizer, importer *Importer, store ExceptionStore) *Handler {
	return &Handler{auth: a, importer: importer, store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleDoctor))
	g.GET("/integrations/google/auth-url", h.AuthURL)
	g.POST("/calendars/:id/exceptions/import-google", h.Import)
}

// RegisterCallback mounts the OAuth2 redirect target. Google's redirect
// carries no bearer token, so it lives outside the authenticated group.
func (h *Handler) RegisterCallback(g *echo.Group) {
	g.GET("/integrations/google/callback", h.Callback)
}

func (h *Handler) AuthURL(c echo.Context) error {
	state := uuid.NewString()
	return c.JSON(http.StatusOK, map[string]string{
		"url":   h.auth.AuthURL(state),
		"state": state,
	})
}

func (h *Handler) Callback(c echo.Context) error {
	if reason := c.QueryParam("error"); reason != "" {
		return echo.NewHTTPError(http.StatusBadRequest, "google authorization failed: "+reason)
	}
	code := c.QueryParam("code")
	if code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "code is required")
	}
	tok, err := h.auth.Exchange(c.Request().Context(), code)
	if err != nil {
		zerolog.Ctx(c.Request().Context()).Warn().Err(err).Msg("google token exchange failed")
		return echo.NewHTTPError(http.StatusBadGateway, "google token exchange failed")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"state": c.QueryParam("state"),
		"token": tok,
	})
}

type importRequest struct {
	From             string `json:"from"`
	To               string `json:"to"`
	GoogleCalendarID string `json:"google_calendar_id"`
}

func (h *Handler) Import(c echo.Context) error {
	calendarID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	raw := c.Request().Header.Get(TokenHeader)
	if raw == "" {
		return echo.NewHTTPError(http.StatusBadRequest, TokenHeader+" header is required")
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil || tok.AccessToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid "+TokenHeader+" header")
	}

	var req importRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	from, err := wallclock.ParseRangeBound(req.From, false)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "from: "+err.Error())
	}
	to, err := wallclock.ParseRangeBound(req.To, true)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "to: "+err.Error())
	}
	if !to.After(from) {
		return echo.NewHTTPError(http.StatusBadRequest, "to must be after from")
	}
	if req.GoogleCalendarID == "" {
		req.GoogleCalendarID = "primary"
	}

	ctx := c.Request().Context()
	blocks, err := h.importer.BusyBlocks(ctx, &tok, req.GoogleCalendarID, from, to)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("calendar_id", calendarID.String()).Msg("google import failed")
		return echo.NewHTTPError(http.StatusBadGateway, "could not read google calendar")
	}

	created, err := h.store.ImportExceptions(ctx, calendarID, blocks)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{
		"found":   len(blocks),
		"created": created,
	})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, calendar.ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, db.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
