package destination

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ttauveron/gcp-iam-watcher/internal/event"
	"github.com/ttauveron/gcp-iam-watcher/internal/platform/metrics"
)

// Composite fans one event out to every configured destination in
// registration order. Each failure is contained and recorded; siblings always
// get their attempt. After the pass, failures are logged once in aggregate
// and swallowed: sink availability is decoupled from message-processing
// correctness, so a dead mail server never triggers transport redelivery
// toward a working chat sink.
type Composite struct {
	destinations []Destination
	log          *slog.Logger
	metrics      *metrics.Metrics
}

func NewComposite(log *slog.Logger, m *metrics.Metrics, destinations ...Destination) *Composite {
	return &Composite{destinations: destinations, log: log, metrics: m}
}

func (c *Composite) Name() string { return "composite" }

func (c *Composite) Send(ctx context.Context, ev *event.IamChange) error {
	var failures []string
	for _, d := range c.destinations {
		if err := c.sendOne(ctx, d, ev); err != nil {
			c.log.Error("destination failed", "destination", d.Name(), "error", err)
			c.metrics.IncSinkFailure(d.Name())
			failures = append(failures, d.Name()+": "+err.Error())
			continue
		}
		c.metrics.IncSinkDelivery(d.Name())
	}

	if len(failures) > 0 {
		c.log.Error("one or more destinations failed", "failures", failures)
	}
	return nil
}

// sendOne contains panics as well as errors so one destination can never
// abort its siblings.
func (c *Composite) sendOne(ctx context.Context, d Destination, ev *event.IamChange) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return d.Send(ctx, ev)
}
