package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/herhealth/clinic/pkg/wallclock"
)

// ---------------------------------------------------------------------------
// Notifier Tests
// ---------------------------------------------------------------------------

func testBooking() Booking {
	return Booking{
		Phone:      "+20 100 000 0000",
		DoctorName: "Dr. Sara Ali",
		StartAt:    wallclock.MustDateTime("2024-05-15T10:30:00"),
	}
}

func TestConfirmationText(t *testing.T) {
	got := ConfirmationText(testBooking())
	want := "HerHealth: your appointment with Dr. Sara Ali is confirmed for 2024-05-15 at 10:30. Reply to this message to reschedule."
	if got != want {
		t.Errorf("text = %q, want %q", got, want)
	}
}

func TestNotifier_AppointmentBooked(t *testing.T) {
	sender := &MockSender{}
	n := NewNotifier(sender)

	if err := n.AppointmentBooked(context.Background(), testBooking()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := sender.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].To != "+20 100 000 0000" {
		t.Errorf("to = %q", calls[0].To)
	}
	if !strings.Contains(calls[0].Body, "10:30") {
		t.Errorf("body should carry the booked wall-clock time: %q", calls[0].Body)
	}
}

func TestNotifier_NoPhone(t *testing.T) {
	sender := &MockSender{}
	b := testBooking()
	b.Phone = "  "

	err := NewNotifier(sender).AppointmentBooked(context.Background(), b)
	if !errors.Is(err, ErrNoRecipient) {
		t.Errorf("expected ErrNoRecipient, got %v", err)
	}
	if len(sender.Calls()) != 0 {
		t.Error("nothing should be sent without a phone")
	}
}

func TestNotifier_SenderFailure(t *testing.T) {
	sender := &MockSender{ShouldFail: true, FailError: "gateway down"}
	err := NewNotifier(sender).AppointmentBooked(context.Background(), testBooking())
	if err == nil || !strings.Contains(err.Error(), "gateway down") {
		t.Errorf("expected wrapped sender error, got %v", err)
	}
}

func TestLogSender(t *testing.T) {
	if err := (LogSender{}).Send(context.Background(), "123", "hello"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// WhatsApp Sender Tests
// ---------------------------------------------------------------------------

func TestWhatsAppSender_Send(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotMsg  whatsAppMessage
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotMsg)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer srv.Close()

	s := NewWhatsAppSender(srv.URL+"/v19.0/", "12345", "secret")
	if err := s.Send(context.Background(), "+20 (100) 000-0000", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/v19.0/12345/messages" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotMsg.MessagingProduct != "whatsapp" || gotMsg.Type != "text" {
		t.Errorf("unexpected message envelope: %+v", gotMsg)
	}
	if gotMsg.To != "201000000000" {
		t.Errorf("to = %q, want digits only", gotMsg.To)
	}
	if gotMsg.Text.Body != "hello" {
		t.Errorf("body = %q", gotMsg.Text.Body)
	}
}

func TestWhatsAppSender_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Invalid OAuth access token","code":190}}`))
	}))
	defer srv.Close()

	err := NewWhatsAppSender(srv.URL, "1", "bad").Send(context.Background(), "1", "x")
	if err == nil || !strings.Contains(err.Error(), "Invalid OAuth access token") {
		t.Errorf("expected API error message, got %v", err)
	}
}

func TestWhatsAppSender_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewWhatsAppSender(srv.URL, "1", "t").Send(ctx, "1", "x"); err == nil {
		t.Error("expected error for cancelled context")
	}
}

// ---------------------------------------------------------------------------
// Mock Sender Tests
// ---------------------------------------------------------------------------

func TestMockSender_Concurrent(t *testing.T) {
	m := &MockSender{}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Send(context.Background(), "1", "x")
		}()
	}
	wg.Wait()
	if len(m.Calls()) != 20 {
		t.Errorf("expected 20 calls, got %d", len(m.Calls()))
	}
}
