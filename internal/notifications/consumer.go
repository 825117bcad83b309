package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/posworks/posgrid-backend/pkg/enums"
	"github.com/posworks/posgrid-backend/pkg/logger"
	"github.com/posworks/posgrid-backend/pkg/mailer"
	"github.com/posworks/posgrid-backend/pkg/outbox"
	"github.com/posworks/posgrid-backend/pkg/outbox/idempotency"
	"github.com/posworks/posgrid-backend/pkg/outbox/payloads"
	"github.com/posworks/posgrid-backend/pkg/outbox/registry"
)

const authNotificationConsumer = "auth-notifications"

type superadminDirectory interface {
	SuperadminEmails(ctx context.Context) ([]string, error)
}

type broadcaster interface {
	ToUser(ctx context.Context, userID uuid.UUID, frameType string, data any) error
	ToRole(ctx context.Context, role enums.UserRole, frameType string, data any) error
}

// Consumer watches auth domain events and turns them into email and
// realtime pushes. Delivery is at-least-once from Pub/Sub, so every event
// passes through the Redis idempotency guard before side effects run.
type Consumer struct {
	directory    superadminDirectory
	mail         mailer.Sender
	realtime     broadcaster
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	decoders     *registry.DecoderRegistry
	logg         *logger.Logger
}

// decodeInto adapts a payload struct to the decoder registry.
func decodeInto[T any](data json.RawMessage) (interface{}, error) {
	var payload T
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func defaultDecoders() *registry.DecoderRegistry {
	reg := registry.NewDecoderRegistry()
	reg.Register(enums.EventSessionTerminated, 1, decodeInto[payloads.SessionTerminatedEvent])
	reg.Register(enums.EventUserRegistered, 1, decodeInto[payloads.UserRegisteredEvent])
	reg.Register(enums.EventUserApproved, 1, decodeInto[payloads.UserApprovedEvent])
	reg.Register(enums.EventUserRejected, 1, decodeInto[payloads.UserRejectedEvent])
	return reg
}

// NewConsumer builds an auth notification consumer.
func NewConsumer(directory superadminDirectory, mail mailer.Sender, realtime broadcaster, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if directory == nil {
		return nil, fmt.Errorf("user directory required")
	}
	if mail == nil {
		return nil, fmt.Errorf("mail sender required")
	}
	if realtime == nil {
		return nil, fmt.Errorf("realtime broadcaster required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		directory:    directory,
		mail:         mail,
		realtime:     realtime,
		subscription: subscription,
		idempotency:  manager,
		decoders:     defaultDecoders(),
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg.Attributes["event_type"], msg.ID, msg.Data)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, eventType, messageID string, data []byte) processResult {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}
	version := envelope.Version
	if version == 0 {
		version = 1
	}

	// A payload that does not decode never will, so decode failures
	// ack rather than cycling through redelivery.
	event, err := c.decoders.Decode(enums.OutboxEventType(eventType), version, envelope.Data)
	if err != nil {
		if errors.Is(err, registry.ErrNoDecoder) {
			c.logg.Info(logCtx, "skipping unhandled event")
		} else {
			c.logg.Error(logCtx, "failed to decode payload", err)
		}
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, authNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := c.dispatch(logCtx, event); err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		_ = c.idempotency.Delete(ctx, authNotificationConsumer, eventID)
		return processResult{nack: true}
	}
	return processResult{ack: true}
}

func (c *Consumer) dispatch(ctx context.Context, event interface{}) error {
	switch payload := event.(type) {
	case payloads.SessionTerminatedEvent:
		return c.handleSessionTerminated(ctx, payload)
	case payloads.UserRegisteredEvent:
		return c.handleUserRegistered(ctx, payload)
	case payloads.UserApprovedEvent:
		return c.handleUserApproved(ctx, payload)
	case payloads.UserRejectedEvent:
		return c.handleUserRejected(ctx, payload)
	default:
		return fmt.Errorf("no handler for decoded event %T", event)
	}
}

func (c *Consumer) handleSessionTerminated(ctx context.Context, payload payloads.SessionTerminatedEvent) error {
	ctx = c.logg.WithFields(ctx, map[string]any{
		"user_id": payload.UserID.String(),
		"reason":  string(payload.Reason),
	})

	if err := c.mail.Send(ctx, terminationEmail(payload)); err != nil {
		return fmt.Errorf("send security email: %w", err)
	}

	if payload.Reason == enums.TerminationConcurrentLogin {
		admins, err := c.directory.SuperadminEmails(ctx)
		if err != nil {
			return fmt.Errorf("list superadmins: %w", err)
		}
		for _, admin := range admins {
			if err := c.mail.Send(ctx, adminAlertEmail(admin, payload)); err != nil {
				return fmt.Errorf("send superadmin alert: %w", err)
			}
		}
		if err := c.realtime.ToRole(ctx, enums.UserRoleSuperadmin, "session_terminated", payload); err != nil {
			return fmt.Errorf("push superadmin frame: %w", err)
		}
	}

	if err := c.realtime.ToUser(ctx, payload.UserID, "session_terminated", payload); err != nil {
		return fmt.Errorf("push user frame: %w", err)
	}
	c.logg.Info(ctx, "session termination notifications delivered")
	return nil
}

func (c *Consumer) handleUserRegistered(ctx context.Context, payload payloads.UserRegisteredEvent) error {
	if payload.Approved {
		return nil
	}
	if err := c.realtime.ToRole(ctx, enums.UserRoleSuperadmin, "user_registered", payload); err != nil {
		return fmt.Errorf("push registration frame: %w", err)
	}
	c.logg.Info(ctx, "pending registration pushed to superadmins")
	return nil
}

func (c *Consumer) handleUserApproved(ctx context.Context, payload payloads.UserApprovedEvent) error {
	if err := c.mail.Send(ctx, mailer.Message{
		To:       payload.Email,
		Subject:  "Your PosGrid account has been approved",
		TextBody: fmt.Sprintf("Hi %s,\n\nYour account has been approved. You can now sign in.", payload.Username),
	}); err != nil {
		return fmt.Errorf("send approval email: %w", err)
	}
	if err := c.realtime.ToUser(ctx, payload.UserID, "user_approved", payload); err != nil {
		return fmt.Errorf("push approval frame: %w", err)
	}
	return nil
}

func (c *Consumer) handleUserRejected(ctx context.Context, payload payloads.UserRejectedEvent) error {
	if err := c.mail.Send(ctx, mailer.Message{
		To:       payload.Email,
		Subject:  "Your PosGrid registration was declined",
		TextBody: fmt.Sprintf("Hi %s,\n\nYour registration was declined. Contact your store manager for details.", payload.Username),
	}); err != nil {
		return fmt.Errorf("send rejection email: %w", err)
	}
	return nil
}

func terminationEmail(payload payloads.SessionTerminatedEvent) mailer.Message {
	var body string
	switch payload.Reason {
	case enums.TerminationConcurrentLogin:
		device := "another device"
		if payload.NewDevice != nil && payload.NewDevice.IPAddress != "" {
			device = payload.NewDevice.IPAddress
			if payload.NewDevice.UserAgent != "" {
				device = fmt.Sprintf("%s (%s)", payload.NewDevice.IPAddress, payload.NewDevice.UserAgent)
			}
		}
		body = fmt.Sprintf("Hi %s,\n\nYour session was signed out because a new sign-in occurred from %s at %s.\n\nIf this was not you, reset your password immediately.",
			payload.Username, device, payload.TerminatedAt.Format("2006-01-02 15:04:05 MST"))
	case enums.TerminationPasswordReset:
		body = fmt.Sprintf("Hi %s,\n\nAll of your sessions were signed out because your password was reset.", payload.Username)
	default:
		body = fmt.Sprintf("Hi %s,\n\nOne of your sessions was signed out by an administrator.", payload.Username)
	}
	return mailer.Message{
		To:       payload.UserEmail,
		Subject:  "Security alert: session signed out",
		TextBody: body,
	}
}

func adminAlertEmail(to string, payload payloads.SessionTerminatedEvent) mailer.Message {
	return mailer.Message{
		To:      to,
		Subject: fmt.Sprintf("Concurrent login detected for %s", payload.Username),
		TextBody: fmt.Sprintf(
			"A second sign-in displaced an active session.\n\nUser: %s (%s)\nTime: %s",
			payload.Username, payload.UserEmail, payload.TerminatedAt.Format("2006-01-02 15:04:05 MST")),
	}
}
