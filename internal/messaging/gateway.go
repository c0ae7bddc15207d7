// Package messaging sends WhatsApp messages through an external provider
// and decodes the provider's delivery webhooks.
package messaging

import (
	"context"
	"errors"
	"strings"
)

// ErrUnavailable wraps every send failure: transport errors, provider
// rejections and timeouts.
var ErrUnavailable = errors.New("messaging unavailable")

type Outbound struct {
	To   string
	Body string
	Type string
}

// Gateway sends one message and returns the provider's message id.
type Gateway interface {
	Name() string
	Send(ctx context.Context, msg Outbound) (string, error)
}

// Inbound is a text message received from a contact.
type Inbound struct {
	ProviderID string
	From       string
	Text       string
}

// StatusUpdate is a delivery receipt for a previously sent message.
type StatusUpdate struct {
	ProviderID string
	Status     string
	Error      string
}

// TrackedStatus reports whether a provider status maps onto the message
// status column.
func TrackedStatus(status string) bool {
	return StatusRank(status) > 0
}

// StatusRank orders tracked statuses sent < delivered < read. Untracked
// values rank 0. A stored status is only replaced by a higher rank.
func StatusRank(status string) int {
	switch status {
	case "sent":
		return 1
	case "delivered":
		return 2
	case "read":
		return 3
	}
	return 0
}

// Digits strips everything but 0-9 from a phone number.
func Digits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
