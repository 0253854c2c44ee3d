package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/sydlexius/tracksignal/internal/event"
	"github.com/sydlexius/tracksignal/internal/track"
)

// Embed colors per event type.
var discordColors = map[event.Type]int{
	event.TrackDetected:     3447003,  // blue
	event.RequestMatched:    3066993,  // green
	event.SourceUnavailable: 15105570, // orange
}

// formatPayload returns the request body and content-type for a webhook delivery.
func formatPayload(w *Webhook, e event.Event) ([]byte, string) {
	switch w.Type {
	case TypeDiscord:
		return formatDiscord(e)
	case TypeSlack:
		return formatSlack(e)
	case TypeGotify:
		return formatGotify(e)
	default:
		return formatGeneric(e)
	}
}

func formatGeneric(e event.Event) ([]byte, string) {
	payload := map[string]any{
		"event":     string(e.Type),
		"timestamp": e.Timestamp,
		"data":      e.Data,
	}
	body, _ := json.Marshal(payload)
	return body, "application/json"
}

func formatDiscord(e event.Event) ([]byte, string) {
	color, ok := discordColors[e.Type]
	if !ok {
		color = 9807270 // grey
	}
	payload := map[string]any{
		"embeds": []map[string]any{
			{
				"title":       formatTitle(e),
				"description": formatDescription(e),
				"color":       color,
				"timestamp":   e.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
			},
		},
	}
	body, _ := json.Marshal(payload)
	return body, "application/json"
}

func formatSlack(e event.Event) ([]byte, string) {
	text := fmt.Sprintf("*%s*\n%s", formatTitle(e), formatDescription(e))
	payload := map[string]any{
		"text": text,
	}
	body, _ := json.Marshal(payload)
	return body, "application/json"
}

func formatGotify(e event.Event) ([]byte, string) {
	priority := 5
	if e.Type == event.SourceUnavailable {
		priority = 7
	}
	payload := map[string]any{
		"title":    formatTitle(e),
		"message":  formatDescription(e),
		"priority": priority,
	}
	body, _ := json.Marshal(payload)
	return body, "application/json"
}

func formatTitle(e event.Event) string {
	switch e.Type {
	case event.TrackDetected:
		return "TrackSignal: Now playing"
	case event.RequestMatched:
		return "TrackSignal: Request played"
	case event.SourceUnavailable:
		return "TrackSignal: Source unavailable"
	}
	return fmt.Sprintf("TrackSignal: %s", e.Type)
}

func formatDescription(e event.Event) string {
	if e.Data == nil {
		return string(e.Type)
	}
	if msg, ok := e.Data[event.KeyMessage].(string); ok {
		return msg
	}
	t, hasTrack := e.Data[event.KeyTrack].(track.Track)
	switch {
	case e.Type == event.RequestMatched && hasTrack:
		desc := t.String()
		if req, ok := e.Data[event.KeyRequest].(track.PendingRequest); ok {
			desc = fmt.Sprintf("%s (requested as %q)", desc, req.Artist+" - "+req.Title)
		}
		if m, ok := e.Data[event.KeyMatch].(track.MatchResult); ok {
			desc = fmt.Sprintf("%s, score %.2f", desc, m.Score)
		}
		return desc
	case hasTrack:
		return t.String()
	}
	b, _ := json.Marshal(e.Data)
	return string(b)
}
