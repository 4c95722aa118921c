// webhook.go validates webhook subscription targets and event selections.
package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// WebhookEvents lists every event a subscription may select
var WebhookEvents = []string{
	"message.received",
	"message.sent",
	"message.failed",
	"reaction.added",
	"reaction.removed",
	"button.clicked",
}

// ValidateWebhookURL requires an absolute http(s) URL with a host and no credentials.
// Plain http is only accepted when allowInsecure is set.
func ValidateWebhookURL(raw string, allowInsecure bool) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("url cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	switch u.Scheme {
	case "https":
	case "http":
		if !allowInsecure {
			return fmt.Errorf("url must use https")
		}
	default:
		return fmt.Errorf("url scheme must be http or https")
	}

	if u.Hostname() == "" {
		return fmt.Errorf("url must include a host")
	}
	if u.User != nil {
		return fmt.Errorf("url must not embed credentials")
	}

	return nil
}

// ValidateWebhookEvents requires at least one event and rejects unknown or duplicate names
func ValidateWebhookEvents(events []string) error {
	if len(events) == 0 {
		return fmt.Errorf("at least one event is required")
	}

	seen := make(map[string]bool, len(events))
	for _, e := range events {
		if !isValidWebhookEvent(e) {
			return fmt.Errorf("unknown event: %s (supported: %s)", e, strings.Join(WebhookEvents, ", "))
		}
		if seen[e] {
			return fmt.Errorf("duplicate event: %s", e)
		}
		seen[e] = true
	}

	return nil
}

func isValidWebhookEvent(event string) bool {
	for _, supported := range WebhookEvents {
		if event == supported {
			return true
		}
	}
	return false
}
