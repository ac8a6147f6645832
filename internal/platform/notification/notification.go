// Package notification delivers booking confirmations to patients. Messages
// go out over the WhatsApp Cloud API when it is configured and are only
// logged otherwise.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/herhealth/clinic/pkg/wallclock"
)

// ---------------------------------------------------------------------------
// Sender Interface
// ---------------------------------------------------------------------------

// Sender delivers a plain text message to a phone number.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// ---------------------------------------------------------------------------
// Log Sender
// ---------------------------------------------------------------------------

// LogSender writes messages to the request logger instead of sending them.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, to, body string) error {
	zerolog.Ctx(ctx).Info().Str("to", to).Str("body", body).Msg("notification (not sent)")
	return nil
}

// ---------------------------------------------------------------------------
// WhatsApp Sender
// ---------------------------------------------------------------------------

// WhatsAppSender posts text messages to the WhatsApp Cloud API.
type WhatsAppSender struct {
	BaseURL string
	PhoneID string
	Token   string
	Client  *http.Client
}

func NewWhatsAppSender(baseURL, phoneID, token string) *WhatsAppSender {
	return &WhatsAppSender{
		BaseURL: strings.TrimRight(baseURL, "/"),
		PhoneID: phoneID,
		Token:   token,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type whatsAppText struct {
	Body string `json:"body"`
}

type whatsAppMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsAppText `json:"text"`
}

type whatsAppError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (s *WhatsAppSender) Send(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(whatsAppMessage{
		MessagingProduct: "whatsapp",
		To:               normalizePhone(to),
		Type:             "text",
		Text:             whatsAppText{Body: body},
	})
	if err != nil {
		return fmt.Errorf("marshal whatsapp message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.BaseURL, s.PhoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.Token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr whatsAppError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("whatsapp API returned %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("whatsapp API returned %d", resp.StatusCode)
	}
	return nil
}

// normalizePhone strips spaces, dashes, parentheses and a leading plus. The
// Cloud API expects digits only.
func normalizePhone(p string) string {
	var b strings.Builder
	for _, r := range p {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Mock Sender (test double)
// ---------------------------------------------------------------------------

// Call records a single call to Send.
type Call struct {
	To   string
	Body string
}

// MockSender is a test double for Sender.
type MockSender struct {
	mu         sync.Mutex
	calls      []Call
	ShouldFail bool
	FailError  string
}

// Send records the call and optionally returns an error.
func (m *MockSender) Send(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{To: to, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded calls.
func (m *MockSender) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// ---------------------------------------------------------------------------
// Notifier
// ---------------------------------------------------------------------------

// Booking is what a confirmation message needs to know about an appointment.
type Booking struct {
	Phone      string
	DoctorName string
	StartAt    wallclock.DateTime
}

// ErrNoRecipient is returned when a booking has no contact phone.
var ErrNoRecipient = errors.New("booking has no contact phone")

// Notifier renders booking messages and hands them to a Sender.
type Notifier struct {
	sender Sender
}

func NewNotifier(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

// ConfirmationText renders the fixed booking confirmation. Times are printed
// exactly as booked, without any zone conversion.
func ConfirmationText(b Booking) string {
	return fmt.Sprintf("HerHealth: your appointment with %s is confirmed for %s at %s. Reply to this message to reschedule.",
		b.DoctorName, b.StartAt.Date(), b.StartAt.TimeOfDay())
}

// AppointmentBooked sends the confirmation for b.
func (n *Notifier) AppointmentBooked(ctx context.Context, b Booking) error {
	if strings.TrimSpace(b.Phone) == "" {
		return ErrNoRecipient
	}
	if err := n.sender.Send(ctx, b.Phone, ConfirmationText(b)); err != nil {
		return fmt.Errorf("notify %s: %w", b.Phone, err)
	}
	return nil
}
