package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/metrics"
	"github.com/JakeFAU/pricewatch/internal/pricing"
)

// Sender delivers Content to one endpoint.
type Sender interface {
	Send(ctx context.Context, endpoint string, content Content) error
}

// Outcome is the delivery result for one endpoint.
type Outcome struct {
	Endpoint string
	Err      error
}

// Delivered reports whether the endpoint accepted the notification.
func (o Outcome) Delivered() bool { return o.Err == nil }

// Dispatcher fans a notification out to endpoints one at a time.
type Dispatcher struct {
	sender Sender
	logger *zap.Logger
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(sender Sender, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{sender: sender, logger: logger.Named("dispatcher")}
}

// Dispatch attempts delivery to every endpoint in order. A failing endpoint is
// logged and does not stop the rest. Empty content is not sent anywhere and
// yields no outcomes.
func (d *Dispatcher) Dispatch(ctx context.Context, content Content, endpoints []string) []Outcome {
	if content.IsEmpty() || len(endpoints) == 0 {
		return nil
	}
	outcomes := make([]Outcome, 0, len(endpoints))
	for _, endpoint := range endpoints {
		err := d.sender.Send(ctx, endpoint, content)
		outcomes = append(outcomes, Outcome{Endpoint: endpoint, Err: err})
		if err != nil {
			metrics.ObserveNotification(pricing.ErrorKind(err))
			d.logger.Warn("webhook delivery failed",
				zap.String("endpoint", redact(endpoint)),
				zap.String("title", content.Title),
				zap.Error(err),
			)
			continue
		}
		metrics.ObserveNotification("delivered")
	}
	return outcomes
}
