package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MetaGateway posts to the WhatsApp Cloud API messages endpoint.
type MetaGateway struct {
	httpClient    *http.Client
	graphURL      string
	phoneNumberID string
	token         string
}

func NewMetaGateway(graphURL, phoneNumberID, token string) *MetaGateway {
	return &MetaGateway{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		graphURL:      strings.TrimRight(graphURL, "/"),
		phoneNumberID: phoneNumberID,
		token:         token,
	}
}

func (g *MetaGateway) Name() string { return "meta" }

type metaSendRequest struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

type metaSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (g *MetaGateway) Send(ctx context.Context, msg Outbound) (string, error) {
	payload := metaSendRequest{MessagingProduct: "whatsapp", To: Digits(msg.To), Type: "text"}
	payload.Text.Body = msg.Body
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode meta message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", g.graphURL, g.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build meta request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var out metaSendResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := "Meta send failed"
		if out.Error != nil && out.Error.Message != "" {
			reason = out.Error.Message
		}
		return "", fmt.Errorf("%w: %s (status %d)", ErrUnavailable, reason, resp.StatusCode)
	}
	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return "", fmt.Errorf("%w: response carried no message id", ErrUnavailable)
	}
	return out.Messages[0].ID, nil
}

// VerifySubscription answers the webhook handshake. It returns the
// challenge to echo and whether the handshake is accepted.
func VerifySubscription(mode, token, challenge, expected string) (string, bool) {
	if expected == "" || mode != "subscribe" || token != expected {
		return "", false
	}
	return challenge, true
}

type metaWebhook struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					ID   string `json:"id"`
					From string `json:"from"`
					Type string `json:"type"`
					Text *struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
				Statuses []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
					Errors []struct {
						Title string `json:"title"`
					} `json:"errors"`
				} `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// MetaEvents is what one webhook delivery carried.
type MetaEvents struct {
	Incoming []Inbound
	Statuses []StatusUpdate
}

// ParseMetaWebhook decodes a webhook body. Only text messages are kept;
// status entries without an id are skipped.
func ParseMetaWebhook(body []byte) (MetaEvents, error) {
	var hook metaWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return MetaEvents{}, fmt.Errorf("decode meta webhook: %w", err)
	}

	var events MetaEvents
	for _, entry := range hook.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				if m.Type != "text" || m.Text == nil || m.ID == "" {
					continue
				}
				events.Incoming = append(events.Incoming, Inbound{ProviderID: m.ID, From: m.From, Text: m.Text.Body})
			}
			for _, s := range change.Value.Statuses {
				if s.ID == "" {
					continue
				}
				update := StatusUpdate{ProviderID: s.ID, Status: s.Status}
				if len(s.Errors) > 0 {
					update.Error = s.Errors[0].Title
				}
				events.Statuses = append(events.Statuses, update)
			}
		}
	}
	return events, nil
}
