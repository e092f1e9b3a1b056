package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/deskflow/itsm-approvals/internal/config"
	"github.com/deskflow/itsm-approvals/internal/domain"
	"github.com/deskflow/itsm-approvals/internal/events"
	"github.com/deskflow/itsm-approvals/internal/notify"
	"github.com/deskflow/itsm-approvals/internal/repository"
	apperrors "github.com/deskflow/itsm-approvals/pkg/util/errorutil"
)

// EmailSender delivers HTML email.
type EmailSender interface {
	Enabled() bool
	Send(ctx context.Context, to []string, subject, htmlBody string) error
}

// ChatPoster posts a message to the approvals chat channel.
type ChatPoster interface {
	Enabled() bool
	Post(ctx context.Context, text string) error
}

// NotificationService turns approval events into email and chat messages.
// Delivery failures are logged and never returned to the publisher.
type NotificationService struct {
	dispatcher events.Dispatcher
	users      repository.UserRepository
	email      EmailSender
	chat       ChatPoster
	logger     *zap.Logger
	appURL     string
}

// NotificationDependencies bundles collaborators for the notification service.
type NotificationDependencies struct {
	Dispatcher events.Dispatcher
	Users      repository.UserRepository
	Email      EmailSender
	Chat       ChatPoster
	Logger     *zap.Logger
	Config     config.AppConfig
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: deps.Dispatcher,
		users:      deps.Users,
		email:      deps.Email,
		chat:       deps.Chat,
		logger:     logger.Named("notifications"),
		appURL:     deps.Config.PublicURL,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleCreated)
	n.dispatcher.Subscribe(events.EventTicketApproved, n.handleApproved)
	n.dispatcher.Subscribe(events.EventTicketRejected, n.handleRejected)
	n.dispatcher.Subscribe(events.EventApprovalReminder, n.handleReminder)
	n.dispatcher.Subscribe(events.EventApprovalEscalated, n.handleEscalated)
}

func (n *NotificationService) handleCreated(_ context.Context, event events.Event) error {
	n.logger.Info("TicketCreated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleApproved(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ApprovedPayload)
	if !ok {
		return nil
	}
	approver := n.displayName(ctx, payload.Approver)
	msg := notify.ApprovalMessage(n.appURL, &event.Ticket, approver, payload.Level, payload.Comments)
	n.deliver(ctx, event, n.creatorEmail(ctx, &event.Ticket), msg)
	return nil
}

func (n *NotificationService) handleRejected(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.RejectedPayload)
	if !ok {
		return nil
	}
	approver := n.displayName(ctx, payload.Approver)
	msg := notify.RejectionMessage(n.appURL, &event.Ticket, approver, payload.Reason, payload.Comments)
	n.deliver(ctx, event, n.creatorEmail(ctx, &event.Ticket), msg)
	return nil
}

func (n *NotificationService) handleReminder(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ReminderPayload)
	if !ok {
		return nil
	}
	recipients := make([]string, 0, len(payload.Recipients))
	for _, user := range payload.Recipients {
		recipients = append(recipients, user.Email)
	}
	n.deliver(ctx, event, recipients, notify.ReminderMessage(n.appURL, &event.Ticket))
	return nil
}

func (n *NotificationService) handleEscalated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.EscalatedPayload)
	if !ok {
		return nil
	}
	msg := notify.EscalationMessage(n.appURL, &event.Ticket, payload.NewApprover.Name)
	n.deliver(ctx, event, []string{payload.NewApprover.Email}, msg)
	return nil
}

func (n *NotificationService) deliver(ctx context.Context, event events.Event, to []string, msg notify.Message) {
	fields := []zap.Field{
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)),
	}

	if n.email != nil && n.email.Enabled() && len(to) > 0 {
		if err := n.email.Send(ctx, to, msg.Subject, msg.HTML); err != nil {
			n.logger.Warn("email notification failed",
				append(fields, zap.Error(apperrors.NewNotificationError("email", err)))...)
		} else {
			n.logger.Debug("email notification sent", append(fields, zap.Strings("to", to))...)
		}
	}

	if n.chat != nil && n.chat.Enabled() {
		if err := n.chat.Post(ctx, msg.Slack); err != nil {
			n.logger.Warn("slack notification failed",
				append(fields, zap.Error(apperrors.NewNotificationError("slack", err)))...)
		} else {
			n.logger.Debug("slack notification sent", fields...)
		}
	}
}

func (n *NotificationService) creatorEmail(ctx context.Context, ticket *domain.Ticket) []string {
	if n.users == nil || ticket.CreatedBy == "" {
		return nil
	}
	user, err := n.users.GetByID(ctx, ticket.CreatedBy)
	if err != nil {
		n.logger.Warn("ticket creator lookup failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return nil
	}
	return []string{user.Email}
}

func (n *NotificationService) displayName(ctx context.Context, userID string) string {
	if n.users == nil || userID == "" {
		return userID
	}
	user, err := n.users.GetByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			n.logger.Debug("approver lookup failed", zap.String("user_id", userID), zap.Error(err))
		}
		return userID
	}
	return user.Name
}
