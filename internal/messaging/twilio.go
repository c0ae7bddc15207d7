package messaging

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioGateway sends WhatsApp messages through Twilio's Messages API.
type TwilioGateway struct {
	client         *twilio.RestClient
	from           string
	statusCallback string
}

func NewTwilioGateway(accountSID, authToken, from, statusCallback string) *TwilioGateway {
	return &TwilioGateway{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		from:           whatsappAddress(from),
		statusCallback: statusCallback,
	}
}

func (g *TwilioGateway) Name() string { return "twilio" }

type twilioResult struct {
	sid string
	err error
}

// Send runs the SDK call, which takes no context, on its own goroutine so
// the caller's deadline still bounds the wait.
func (g *TwilioGateway) Send(ctx context.Context, msg Outbound) (string, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(whatsappAddress(msg.To))
	params.SetFrom(g.from)
	params.SetBody(msg.Body)
	if g.statusCallback != "" {
		params.SetStatusCallback(g.statusCallback)
	}

	done := make(chan twilioResult, 1)
	go func() {
		resp, err := g.client.Api.CreateMessage(params)
		if err != nil {
			done <- twilioResult{err: err}
			return
		}
		if resp == nil || resp.Sid == nil {
			done <- twilioResult{err: fmt.Errorf("response carried no message sid")}
			return
		}
		done <- twilioResult{sid: *resp.Sid}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, res.err)
		}
		return res.sid, nil
	}
}

func whatsappAddress(phone string) string {
	if strings.HasPrefix(phone, "whatsapp:") {
		return phone
	}
	return "whatsapp:+" + Digits(phone)
}

// ValidateTwilioSignature checks X-Twilio-Signature for a form callback
// posted to fullURL.
func ValidateTwilioSignature(authToken, fullURL string, form url.Values, signature string) bool {
	params := make(map[string]string, len(form))
	for key := range form {
		params[key] = form.Get(key)
	}
	validator := client.NewRequestValidator(authToken)
	return validator.Validate(fullURL, params, signature)
}

// ParseTwilioStatus reads a status callback form.
func ParseTwilioStatus(form url.Values) (StatusUpdate, bool) {
	sid := form.Get("MessageSid")
	status := form.Get("MessageStatus")
	if sid == "" || status == "" {
		return StatusUpdate{}, false
	}
	update := StatusUpdate{ProviderID: sid, Status: status}
	if code := form.Get("ErrorCode"); code != "" {
		update.Error = "twilio error " + code
		if msg := form.Get("ErrorMessage"); msg != "" {
			update.Error += ": " + msg
		}
	}
	return update, true
}
