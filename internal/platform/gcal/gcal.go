// Package gcal imports busy time from a doctor's Google Calendar as calendar
// exceptions, so external commitments block clinic slots.
package gcal

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendarapi "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Client wraps the OAuth2 flow and the events API.
type Client struct {
	oauth    *oauth2.Config
	endpoint string
}

func NewClient(cfg Config) *Client {
	return &Client{oauth: &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{calendarapi.CalendarReadonlyScope},
		Endpoint:     google.Endpoint,
	}}
}

// AuthURL returns the consent page URL. Offline access is requested so the
// token carries a refresh token.
func (c *Client) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange google auth code: %w", err)
	}
	return tok, nil
}

// ListEvents returns every single (expanded) event of calendarID between
// timeMin and timeMax, ordered by start time.
func (c *Client) ListEvents(ctx context.Context, token *oauth2.Token, calendarID string, timeMin, timeMax time.Time) ([]*calendarapi.Event, error) {
	opts := []option.ClientOption{option.WithHTTPClient(c.oauth.Client(ctx, token))}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	srv, err := calendarapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	var events []*calendarapi.Event
	err = srv.Events.List(calendarID).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		MaxResults(250).
		Pages(ctx, func(page *calendarapi.Events) error {
			events = append(events, page.Items...)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list google events: %w", err)
	}
	return events, nil
}
