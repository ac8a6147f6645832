package availability

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/herhealth/clinic/internal/domain/calendar"
	"github.com/herhealth/clinic/internal/platform/db"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrBlocked      = errors.New("requested time is blocked")
	ErrDoubleBooked = errors.New("requested time is fully booked")
)

// Rejection codes returned to clients in the 409 body.
const (
	CodeBlocked      = "BLOCKED"
	CodeDoubleBooked = "DOUBLE_BOOKED"
)

// RejectionError is returned by the booking guard when a candidate interval
// cannot be booked. errors.Is matches ErrBlocked or ErrDoubleBooked by Code.
type RejectionError struct {
	Code   string
	Reason string
}

func (e *RejectionError) Error() string {
	return e.Code + ": " + e.Reason
}

func (e *RejectionError) Is(target error) bool {
	switch target {
	case ErrBlocked:
		return e.Code == CodeBlocked
	case ErrDoubleBooked:
		return e.Code == CodeDoubleBooked
	}
	return false
}

func validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFound(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// HTTPError translates availability and guard errors for echo. Other
// packages that surface guard results use it so the 409 body stays the same
// everywhere.
func HTTPError(err error) error {
	var rej *RejectionError
	switch {
	case errors.As(err, &rej):
		return echo.NewHTTPError(http.StatusConflict, map[string]string{
			"code":    rej.Code,
			"message": rej.Reason,
		})
	case errors.Is(err, ErrValidation), errors.Is(err, calendar.ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, db.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
