package appointment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *testEnv, *echo.Echo) {
	env := newTestEnv()
	return NewHandler(env.svc), env, echo.New()
}

func expectHTTPStatus(t *testing.T, err error, code int) *echo.HTTPError {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
	return httpErr
}

func jsonContext(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func (env *testEnv) createBody(start, end string) string {
	return `{"patient_id":"` + env.patientID.String() + `","doctor_id":"` + env.doctorID.String() +
		`","start_at":"` + start + `","end_at":"` + end + `","type":"checkup","reservation_type":"clinic"}`
}

func TestHandler_CreateAppointment(t *testing.T) {
	h, env, e := newTestHandler()
	c, rec := jsonContext(e, http.MethodPost, "/", env.createBody("2024-05-15T10:00:00", "2024-05-15T10:30:00"))

	if err := h.CreateAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var got map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got["start_at"] != "2024-05-15T10:00:00" || got["end_at"] != "2024-05-15T10:30:00" {
		t.Errorf("expected wall-clock times to round-trip unchanged, got %v / %v", got["start_at"], got["end_at"])
	}
	if got["status"] != "scheduled" {
		t.Errorf("expected status scheduled, got %v", got["status"])
	}
}

func TestHandler_CreateAppointment_Conflict(t *testing.T) {
	h, env, e := newTestHandler()
	env.book(t, "2024-05-15T10:00:00", "2024-05-15T10:30:00")

	c, _ := jsonContext(e, http.MethodPost, "/", env.createBody("2024-05-15T10:00:00", "2024-05-15T10:30:00"))
	httpErr := expectHTTPStatus(t, h.CreateAppointment(c), http.StatusConflict)

	body, ok := httpErr.Message.(map[string]string)
	if !ok {
		t.Fatalf("expected a code/message body, got %T", httpErr.Message)
	}
	if body["code"] != "DOUBLE_BOOKED" {
		t.Errorf("expected DOUBLE_BOOKED, got %q", body["code"])
	}
}

func TestHandler_CreateAppointment_RejectsOffset(t *testing.T) {
	h, env, e := newTestHandler()
	c, _ := jsonContext(e, http.MethodPost, "/", env.createBody("2024-05-15T10:00:00Z", "2024-05-15T10:30:00Z"))
	expectHTTPStatus(t, h.CreateAppointment(c), http.StatusBadRequest)
}

func TestHandler_CreateAppointment_Invalid(t *testing.T) {
	h, env, e := newTestHandler()
	c, _ := jsonContext(e, http.MethodPost, "/", `{"doctor_id":"`+env.doctorID.String()+`","start_at":"2024-05-15T10:00:00","duration_minutes":30}`)
	expectHTTPStatus(t, h.CreateAppointment(c), http.StatusBadRequest)
}

func TestHandler_GetAppointment(t *testing.T) {
	h, env, e := newTestHandler()
	a := env.book(t, "2024-05-15T10:00:00", "2024-05-15T10:30:00")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	if err := h.GetAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetAppointment_NotFound(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	expectHTTPStatus(t, h.GetAppointment(c), http.StatusNotFound)
}

func TestHandler_ListAppointments(t *testing.T) {
	h, env, e := newTestHandler()
	env.book(t, "2024-05-14T10:00:00", "2024-05-14T10:30:00")
	env.book(t, "2024-05-15T10:00:00", "2024-05-15T10:30:00")

	target := "/?doctor_id=" + env.doctorID.String() + "&date_from=2024-05-15&date_to=2024-05-15"
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()

	if err := h.ListAppointments(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Data  []Appointment `json:"data"`
		Total int           `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 1 || len(body.Data) != 1 {
		t.Fatalf("expected 1 appointment, got %d", body.Total)
	}
	if body.Data[0].StartAt.String() != "2024-05-15T10:00:00" {
		t.Errorf("unexpected appointment: %+v", body.Data[0])
	}
}

func TestHandler_ListAppointments_BadParams(t *testing.T) {
	h, _, e := newTestHandler()
	for _, target := range []string{"/?doctor_id=x", "/?status=booked", "/?date_from=tomorrow"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		err := h.ListAppointments(e.NewContext(req, httptest.NewRecorder()))
		expectHTTPStatus(t, err, http.StatusBadRequest)
	}
}

func TestHandler_UpdateAppointment(t *testing.T) {
	h, env, e := newTestHandler()
	a := env.book(t, "2024-05-15T10:00:00", "2024-05-15T10:30:00")

	c, rec := jsonContext(e, http.MethodPut, "/", env.createBody("2024-05-15T11:00:00", "2024-05-15T11:30:00"))
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	if err := h.UpdateAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	stored, _ := env.svc.GetAppointment(context.Background(), a.ID)
	if stored.StartAt.String() != "2024-05-15T11:00:00" {
		t.Errorf("expected moved appointment, got %s", stored.StartAt)
	}
}

func TestHandler_CancelAppointment(t *testing.T) {
	h, env, e := newTestHandler()
	a := env.book(t, "2024-05-15T10:00:00", "2024-05-15T10:30:00")

	c, rec := jsonContext(e, http.MethodPost, "/", `{"reason":"Rescheduled by phone"}`)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	if err := h.CancelAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Appointment
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %q", got.Status)
	}
}

func TestHandler_CancelAppointment_NoBody(t *testing.T) {
	h, env, e := newTestHandler()
	a := env.book(t, "2024-05-15T10:00:00", "2024-05-15T10:30:00")

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	if err := h.CancelAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_DeleteAppointment(t *testing.T) {
	h, env, e := newTestHandler()
	a := env.book(t, "2024-05-15T10:00:00", "2024-05-15T10:30:00")

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())

	if err := h.DeleteAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}
