package delivery

import (
	"context"
	"log/slog"
	"regexp"
	"time"
)

// statusTemplates maps a target status to its message template type. Statuses
// without an entry (pending, returned) produce no customer message.
var statusTemplates = map[Status]string{
	StatusAssigned:       "delivery_assigned",
	StatusPickedUp:       "delivery_picked_up",
	StatusOutForDelivery: "delivery_out_for_delivery",
	StatusArrived:        "delivery_arrived",
	StatusDelivered:      "delivery_delivered",
	StatusFailed:         "delivery_failed",
}

var templateVarPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// MessageTemplate is a customer-facing message body with its channels.
type MessageTemplate struct {
	Type     string
	Body     string
	Channels []string
}

// TemplateStore resolves active message templates by type.
type TemplateStore interface {
	GetTemplate(ctx context.Context, templateType string) (MessageTemplate, bool, error)
}

// NotificationStore persists notification records and resolves recipients.
type NotificationStore interface {
	RecipientPhone(ctx context.Context, orderID int64) (string, error)
	InsertNotification(ctx context.Context, n Notification) error
}

// RenderTemplate substitutes {{variable}} placeholders from the context map.
// Unknown variables render as empty strings.
func RenderTemplate(body string, vars map[string]string) string {
	return templateVarPattern.ReplaceAllStringFunc(body, func(match string) string {
		name := templateVarPattern.FindStringSubmatch(match)[1]
		return vars[name]
	})
}

// StatusNotifier records one notification per configured channel when a
// delivery changes status.
type StatusNotifier struct {
	templates TemplateStore
	store     NotificationStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewStatusNotifier constructs the notifier.
func NewStatusNotifier(templates TemplateStore, store NotificationStore, logger *slog.Logger) *StatusNotifier {
	return &StatusNotifier{templates: templates, store: store, logger: logger, now: time.Now}
}

// StatusChanged implements Notifier. Errors are logged; a notification
// problem never affects the transition that triggered it.
func (n *StatusNotifier) StatusChanged(ctx context.Context, d Delivery, from, to Status) {
	templateType, ok := statusTemplates[to]
	if !ok {
		return
	}
	tpl, found, err := n.templates.GetTemplate(ctx, templateType)
	if err != nil {
		n.warn("load template", d.ID, err)
		return
	}
	if !found {
		return
	}
	recipient, err := n.store.RecipientPhone(ctx, d.OrderID)
	if err != nil || recipient == "" {
		if err != nil {
			n.warn("resolve recipient", d.ID, err)
		}
		return
	}
	message := RenderTemplate(tpl.Body, n.templateVars(d))
	if message == "" {
		return
	}
	channels := tpl.Channels
	if len(channels) == 0 {
		channels = []string{"sms"}
	}
	for _, channel := range channels {
		if err := n.store.InsertNotification(ctx, Notification{
			DeliveryID: d.ID,
			Channel:    channel,
			Recipient:  recipient,
			Message:    message,
			Status:     "pending",
			CreatedAt:  n.now(),
		}); err != nil {
			n.warn("record notification", d.ID, err)
		}
	}
}

func (n *StatusNotifier) templateVars(d Delivery) map[string]string {
	vars := map[string]string{
		"delivery_number": d.DeliveryNumber,
		"address":         d.Address,
	}
	if d.ScheduledDate != nil {
		vars["scheduled_date"] = d.ScheduledDate.Format("02/01/2006")
	}
	if d.FailureReason != "" {
		vars["failure_reason"] = d.FailureReason
	}
	return vars
}

func (n *StatusNotifier) warn(msg string, deliveryID int64, err error) {
	if n.logger != nil {
		n.logger.Warn(msg, slog.Int64("delivery_id", deliveryID), slog.Any("error", err))
	}
}
