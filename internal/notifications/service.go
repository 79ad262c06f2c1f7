package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"reqflow/internal/config"
)

const userAgent = "Reqflow-Go/0.1.0"

// Event enumerates notification kinds.
type Event string

const (
	EventSentToWarehouse Event = "sent_to_warehouse"
	EventSentToShipping  Event = "sent_to_shipping"
	EventTest            Event = "test"
)

// Payload carries request details for a notification. Values are rendered
// with fmt's %v verb.
type Payload map[string]any

// Payload keys understood by the formatters.
const (
	KeyNumber      = "number"
	KeyRequester   = "requester"
	KeyMaterial    = "material"
	KeyLot         = "lot"
	KeySupplier    = "supplier"
	KeyArticleCode = "article_code"
	KeyUrgency     = "urgency"
	KeyStatus      = "status"
	KeyComment     = "comment"
	KeyActor       = "actor"
)

func (p Payload) str(key string) string {
	if p == nil {
		return ""
	}
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds the configured transports. With no ntfy topic and no SMTP
// host a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	n := cfg.Notifications
	timeout := time.Duration(n.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var transports []Service
	if topic := strings.TrimSpace(n.NtfyTopic); topic != "" {
		transports = append(transports, newNtfyService(topic, timeout))
	}
	if cfg.SMTPEnabled() {
		transports = append(transports, newSMTPService(n.SMTP, timeout))
	}

	var svc Service
	switch len(transports) {
	case 0:
		return noopService{}
	case 1:
		svc = transports[0]
	default:
		svc = multiService(transports)
	}
	return &filteredService{
		next: svc,
		enabled: map[Event]bool{
			EventSentToWarehouse: n.Warehouse,
			EventSentToShipping:  n.Shipping,
			EventTest:            true,
		},
	}
}

// Noop returns a Service that discards every notification.
func Noop() Service { return noopService{} }

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

func render(event Event, p Payload) (message, bool) {
	number := p.str(KeyNumber)
	switch event {
	case EventSentToWarehouse:
		return message{
			title:    "Reqflow - Sent to Warehouse " + number,
			body:     detailLines("📦 Request sent to Warehouse", p),
			tags:     []string{"reqflow", "warehouse", "routed"},
			priority: urgencyPriority(p.str(KeyUrgency)),
		}, true
	case EventSentToShipping:
		return message{
			title:    "Reqflow - Completed " + number,
			body:     detailLines("🚚 Request completed and sent to Shipping", p),
			tags:     []string{"reqflow", "shipping", "completed"},
			priority: urgencyPriority(p.str(KeyUrgency)),
		}, true
	case EventTest:
		return message{
			title:    "Reqflow - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"reqflow", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func detailLines(headline string, p Payload) string {
	var b strings.Builder
	b.WriteString(headline)
	if number := p.str(KeyNumber); number != "" {
		b.WriteString(": ")
		b.WriteString(number)
	}
	rows := []struct{ label, key string }{
		{"Requester", KeyRequester},
		{"Material", KeyMaterial},
		{"Lot", KeyLot},
		{"Supplier", KeySupplier},
		{"Article", KeyArticleCode},
		{"Urgency", KeyUrgency},
		{"Comment", KeyComment},
		{"By", KeyActor},
	}
	for _, row := range rows {
		if v := p.str(row.key); v != "" {
			fmt.Fprintf(&b, "\n%s: %s", row.label, v)
		}
	}
	return b.String()
}

func urgencyPriority(urgency string) string {
	switch strings.ToLower(urgency) {
	case "critical":
		return "urgent"
	case "high":
		return "high"
	default:
		return ""
	}
}

type filteredService struct {
	next    Service
	enabled map[Event]bool
}

func (f *filteredService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !f.enabled[event] {
		return nil
	}
	return f.next.Publish(ctx, event, payload)
}

// multiService fans out to every transport and joins their errors.
type multiService []Service

func (m multiService) Publish(ctx context.Context, event Event, payload Payload) error {
	var errs []error
	for _, svc := range m {
		if err := svc.Publish(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
