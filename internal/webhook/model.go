// Package webhook stores outbound webhook endpoints and delivers pipeline
// events to them.
package webhook

import (
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/sydlexius/tracksignal/internal/event"
)

// Webhook represents a configured webhook endpoint.
type Webhook struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Type      string    `json:"type"`
	Events    []string  `json:"events"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Webhook types.
const (
	TypeGeneric = "generic"
	TypeDiscord = "discord"
	TypeSlack   = "slack"
	TypeGotify  = "gotify"
)

var validTypes = []string{TypeGeneric, TypeDiscord, TypeSlack, TypeGotify}

// Validate checks the fields a caller can set.
func (w *Webhook) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("name is required")
	}
	if w.URL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(w.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url must be an absolute http or https URL")
	}
	if !slices.Contains(validTypes, w.Type) {
		return fmt.Errorf("unknown webhook type %q", w.Type)
	}
	for _, e := range w.Events {
		if !event.Type(e).Valid() {
			return fmt.Errorf("unknown event type %q", e)
		}
	}
	return nil
}

// Subscribed reports whether the webhook wants events of type t.
func (w *Webhook) Subscribed(t event.Type) bool {
	return w.Enabled && slices.Contains(w.Events, string(t))
}
