package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jerealeksanteri/skilta-piikki/internal/domain"
	"github.com/jerealeksanteri/skilta-piikki/internal/infra/observability"
	"github.com/jerealeksanteri/skilta-piikki/internal/port"
)

var messagingTracer = otel.Tracer("service/messaging")

// Delivery is fire-and-forget; this bounds how long one send may hang.
const dispatchTimeout = 15 * time.Second

// bulkSendLimit caps concurrent Bot API calls during a bulk dispatch.
const bulkSendLimit = 8

// Notification is one pending delivery: the recipient plus the template
// variables.
type Notification struct {
	TelegramID int64
	UserName   string
	Amount     decimal.Decimal
}

// MessagingService renders event templates and delivers them to members.
// Notification failures never propagate to the operation that triggered
// them; they are logged and counted instead.
type MessagingService struct {
	store   port.TemplateStore
	sender  port.MessageSender
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewMessagingService creates a new messaging service.
func NewMessagingService(store port.TemplateStore, sender port.MessageSender, metrics *observability.Metrics, logger *zap.Logger) *MessagingService {
	return &MessagingService{
		store:   store,
		sender:  sender,
		metrics: metrics,
		logger:  logger,
	}
}

// ============================================================
// Template administration
// ============================================================

func (s *MessagingService) ListTemplates(ctx context.Context, actor *domain.Member) ([]domain.MessageTemplate, error) {
	if err := requireAdmin(actor, "list message templates"); err != nil {
		return nil, err
	}
	return s.store.ListTemplates(ctx)
}

func (s *MessagingService) UpdateTemplate(ctx context.Context, actor *domain.Member, id int64, patch *domain.TemplatePatch) (*domain.MessageTemplate, error) {
	if err := requireAdmin(actor, "update message template"); err != nil {
		return nil, err
	}
	if patch.Template != nil && strings.TrimSpace(*patch.Template) == "" {
		return nil, &domain.ErrValidation{Field: "template", Message: "template text must not be empty"}
	}

	tpl, err := s.store.UpdateTemplate(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.logger.Info("message template updated",
		zap.Int64("template_id", id),
		zap.String("event_type", string(tpl.EventType)),
	)
	return tpl, nil
}

// ============================================================
// Dispatch
// ============================================================

// Dispatch delivers one event notification in the background. It returns
// immediately; the send runs on its own context so it survives the request
// that triggered it.
func (s *MessagingService) Dispatch(event domain.EventType, n Notification) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		s.send(ctx, event, n)
	}()
}

// DispatchBulk delivers the same event to many members, a bounded number of
// sends in flight at a time.
func (s *MessagingService) DispatchBulk(event domain.EventType, notifications []Notification) {
	if len(notifications) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(len(notifications))*dispatchTimeout)
		defer cancel()
		ctx, span := messagingTracer.Start(ctx, "MessagingService.DispatchBulk")
		defer span.End()

		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(bulkSendLimit)
		for _, n := range notifications {
			n := n
			g.Go(func() error {
				s.send(ctx, event, n)
				return nil
			})
		}
		_ = g.Wait()
	}()
}

func (s *MessagingService) send(ctx context.Context, event domain.EventType, n Notification) {
	tpl, err := s.store.GetActiveTemplate(ctx, event)
	if err != nil {
		s.metrics.IncrNotification("failed")
		s.logger.Error("load template failed",
			zap.String("event_type", string(event)),
			zap.Error(err),
		)
		return
	}
	if tpl == nil {
		s.metrics.IncrNotification("suppressed")
		return
	}

	text := renderTemplate(tpl.Template, n)
	if err := s.sender.Send(ctx, n.TelegramID, text); err != nil {
		s.metrics.IncrNotification("failed")
		s.logger.Error("notification send failed",
			zap.String("event_type", string(event)),
			zap.Int64("telegram_id", n.TelegramID),
			zap.Error(err),
		)
		return
	}
	s.metrics.IncrNotification("sent")
}

// renderTemplate substitutes {user} and {amount}. Unknown placeholders pass
// through untouched so a typo in a template degrades visibly, not fatally.
func renderTemplate(tpl string, n Notification) string {
	return strings.NewReplacer(
		"{user}", n.UserName,
		"{amount}", formatAmount(n.Amount),
	).Replace(tpl)
}

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
