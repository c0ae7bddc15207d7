package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"realtycrm/api/internal/messaging"
	"realtycrm/api/internal/rbac"
	"realtycrm/api/internal/store"
	"realtycrm/api/internal/validate"
)

const (
	directionIncoming = "incoming"
	directionOutgoing = "outgoing"

	metaStatusPending = "pending"
	metaStatusSent    = "sent"
	metaStatusError   = "error"

	notificationLimit = 100
)

type SendMessageInput struct {
	LeadID      string `json:"lead_id" validate:"required"`
	Content     string `json:"content" validate:"required"`
	MessageType string `json:"message_type" validate:"omitempty,oneof=text image document"`
}

func (s *Service) ListMessages(ctx context.Context, caller Caller, q RecordQuery) ([]store.Message, error) {
	filter := q.filter()
	filter.Status = ""
	return s.store.ListMessages(ctx, caller.CompanyID, filter)
}

// SendMessage stores an outgoing message and hands it to the configured
// gateway. The stored row survives a gateway failure and carries the error.
func (s *Service) SendMessage(ctx context.Context, caller Caller, in SendMessageInput) (store.Message, error) {
	if err := s.authorize(caller, rbac.ActionCreate, rbac.Target{}); err != nil {
		return store.Message{}, err
	}
	in.Content = strings.TrimSpace(in.Content)
	if err := validate.Struct(in); err != nil {
		return store.Message{}, err
	}
	if in.MessageType == "" {
		in.MessageType = "text"
	}
	target, err := s.store.GetLead(ctx, caller.CompanyID, in.LeadID)
	if err != nil {
		return store.Message{}, notFoundAs(err, "Lead")
	}

	msg := store.Message{
		ID:          s.newID(),
		CompanyID:   caller.CompanyID,
		LeadID:      target.ID,
		Content:     in.Content,
		Direction:   directionOutgoing,
		Status:      "sent",
		MessageType: in.MessageType,
	}
	if s.gateway != nil {
		pending := metaStatusPending
		msg.MetaStatus = &pending
	}
	msg, err = s.store.InsertMessage(ctx, msg)
	if err != nil {
		return store.Message{}, err
	}
	if s.gateway == nil {
		return msg, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.MessagingTimeout)
	defer cancel()
	providerID, sendErr := s.gateway.Send(sendCtx, messaging.Outbound{
		To:   target.Phone,
		Body: in.Content,
		Type: in.MessageType,
	})
	log := s.log.WithFields(logrus.Fields{
		"gateway":    s.gateway.Name(),
		"message_id": msg.ID,
		"lead_id":    target.ID,
	})

	if sendErr != nil {
		s.metrics.MessagesSent.WithLabelValues(s.gateway.Name(), "error").Inc()
		log.WithError(sendErr).Warn("message send failed")
		status, detail := metaStatusError, sendErr.Error()
		if _, err := s.store.RecordSendResult(context.WithoutCancel(ctx), caller.CompanyID, msg.ID, nil, &status, &detail); err != nil {
			log.WithError(err).Error("record send failure")
		}
		return store.Message{}, errMessagingUnavailable(msg.ID)
	}

	s.metrics.MessagesSent.WithLabelValues(s.gateway.Name(), "ok").Inc()
	status := metaStatusSent
	updated, err := s.store.RecordSendResult(ctx, caller.CompanyID, msg.ID, &providerID, &status, nil)
	if err != nil {
		return store.Message{}, fmt.Errorf("record send result: %w", err)
	}
	log.WithField("provider_id", providerID).Info("message sent")
	return updated, nil
}

// VerifyMetaSubscription answers the webhook subscription handshake.
func (s *Service) VerifyMetaSubscription(mode, token, challenge string) (string, bool) {
	return messaging.VerifySubscription(mode, token, challenge, s.cfg.MetaVerifyToken)
}

// HandleMetaWebhook applies one webhook delivery. Per-event failures are
// logged; only an undecodable body is an error.
func (s *Service) HandleMetaWebhook(ctx context.Context, body []byte) error {
	events, err := messaging.ParseMetaWebhook(body)
	if err != nil {
		return errBadRequest("webhook body is not valid JSON")
	}
	for _, in := range events.Incoming {
		s.metrics.WebhookEvents.WithLabelValues("meta", "message").Inc()
		s.receiveMessage(ctx, in)
	}
	for _, update := range events.Statuses {
		s.metrics.WebhookEvents.WithLabelValues("meta", "status").Inc()
		s.applyStatus(ctx, "meta", update)
	}
	return nil
}

// HandleTwilioStatus applies a Twilio status callback. The signature is
// checked only when an auth token is configured.
func (s *Service) HandleTwilioStatus(ctx context.Context, fullURL string, form url.Values, signature string) error {
	if s.cfg.TwilioAuthToken != "" && !messaging.ValidateTwilioSignature(s.cfg.TwilioAuthToken, fullURL, form, signature) {
		s.log.WithField("url", fullURL).Warn("twilio signature rejected")
		return errForbidden()
	}
	update, ok := messaging.ParseTwilioStatus(form)
	if !ok {
		return errValidation("MessageSid and MessageStatus are required", nil)
	}
	s.metrics.WebhookEvents.WithLabelValues("twilio", "status").Inc()
	s.applyStatus(ctx, "twilio", update)
	return nil
}

func (s *Service) receiveMessage(ctx context.Context, in messaging.Inbound) {
	log := s.log.WithFields(logrus.Fields{"provider_id": in.ProviderID})
	digits := messaging.Digits(in.From)
	if digits == "" {
		log.Warn("incoming message without sender")
		return
	}
	matches, err := s.store.FindLeadsByPhoneDigits(ctx, digits)
	if err != nil {
		log.WithError(err).Error("match incoming sender")
		return
	}
	if len(matches) == 0 {
		log.WithField("from", digits).Info("incoming message from unknown sender dropped")
		return
	}
	// The provider id is unique, so the oldest matching lead owns the message.
	target := matches[0]
	if len(matches) > 1 {
		log.WithField("matches", len(matches)).Warn("sender matches several leads")
	}

	providerID := in.ProviderID
	_, err = s.store.InsertMessage(ctx, store.Message{
		ID:            s.newID(),
		CompanyID:     target.CompanyID,
		LeadID:        target.ID,
		Content:       in.Text,
		Direction:     directionIncoming,
		Status:        "delivered",
		MessageType:   "text",
		MetaMessageID: &providerID,
	})
	if errors.Is(err, store.ErrDuplicate) {
		log.Debug("duplicate incoming message ignored")
		return
	}
	if err != nil {
		log.WithError(err).Error("store incoming message")
		return
	}
	if err := s.store.TouchLeadContact(ctx, target.CompanyID, target.ID, s.now().UTC()); err != nil {
		log.WithError(err).Warn("touch lead contact")
	}
	if target.AssignedTo != nil && *target.AssignedTo != "" {
		s.notify(ctx, target.CompanyID, *target.AssignedTo,
			"New message from "+target.Name, in.Text, "/messages?lead_id="+target.ID)
	}
}

func (s *Service) applyStatus(ctx context.Context, source string, update messaging.StatusUpdate) {
	var status, detail *string
	if messaging.TrackedStatus(update.Status) {
		status = &update.Status
	}
	if update.Error != "" {
		detail = &update.Error
	}
	err := s.store.UpdateStatusByProviderID(ctx, update.ProviderID, update.Status, status, detail)
	log := s.log.WithFields(logrus.Fields{"source": source, "provider_id": update.ProviderID, "status": update.Status})
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Debug("status for unknown message ignored")
	case err != nil:
		log.WithError(err).Error("apply message status")
	}
}

func (s *Service) ListNotifications(ctx context.Context, caller Caller) ([]store.Notification, error) {
	return s.store.ListNotifications(ctx, caller.CompanyID, caller.UserID, false, notificationLimit)
}

func (s *Service) MarkNotificationRead(ctx context.Context, caller Caller, id string) error {
	affected, err := s.store.MarkNotificationsRead(ctx, caller.CompanyID, caller.UserID, []string{id})
	if err != nil {
		return err
	}
	if affected == 0 {
		return errNotFound("Notification")
	}
	return nil
}
