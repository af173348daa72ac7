// Package destination holds the notification sinks and the machinery around
// them: the capability interface, the filter decorator, the composite
// dispatcher, and the registry that builds the configured set from the
// environment.
package destination

import (
	"context"
	"errors"

	"github.com/ttauveron/gcp-iam-watcher/internal/event"
)

//go:generate mockgen -source=destination.go -destination=mocks/destination_mocks.go -package=mocks Destination

// Destination is the sink capability: accept one normalized change event,
// return success or failure. Implementations own their wire format and
// transport. A failing destination must never prevent a sibling from
// receiving the event; the composite dispatcher enforces that, not each
// destination individually.
type Destination interface {
	Name() string
	Send(ctx context.Context, ev *event.IamChange) error
}

// ErrMisconfigured marks a destination that cannot be constructed from the
// current configuration. The registry surfaces it fatally at startup so a
// broken notification path never runs silently.
var ErrMisconfigured = errors.New("destination misconfigured")
