package destination

import (
	"context"
	"strings"

	"github.com/ttauveron/gcp-iam-watcher/internal/event"
	"github.com/ttauveron/gcp-iam-watcher/internal/platform/config"
)

// Filter wraps a destination with up to three optional constraint sets. An
// event failing any configured dimension is silently skipped, not an error.
//
// Event type and role are checked once per event using the first change
// group. An event carrying groups with mixed roles is therefore filtered
// coarsely at the event level, not per group; that granularity is a product
// decision, kept as is.
type Filter struct {
	inner         Destination
	eventTypes    map[string]struct{}
	roles         map[string]struct{}
	resourceTypes map[string]struct{}
}

// NewFilter wraps inner with the configured dimensions. Matching is
// case-insensitive on every dimension.
func NewFilter(inner Destination, dims config.FilterDimensions) *Filter {
	return &Filter{
		inner:         inner,
		eventTypes:    toSet(dims.EventTypes),
		roles:         toSet(dims.Roles),
		resourceTypes: toSet(dims.ResourceTypes),
	}
}

func (f *Filter) Name() string { return f.inner.Name() }

func (f *Filter) Send(ctx context.Context, ev *event.IamChange) error {
	if !f.accepts(ev) {
		return nil
	}
	return f.inner.Send(ctx, ev)
}

func (f *Filter) accepts(ev *event.IamChange) bool {
	// Changes is non-empty by construction; the first group carries the
	// event-level type and role.
	lead := ev.Changes[0]
	if !matches(f.eventTypes, string(lead.Type)) {
		return false
	}
	if !matches(f.roles, lead.Role) {
		return false
	}
	return matches(f.resourceTypes, ev.ResourceType)
}

// matches reports whether value passes the set; an empty set means no
// constraint on that dimension.
func matches(set map[string]struct{}, value string) bool {
	if len(set) == 0 {
		return true
	}
	_, ok := set[strings.ToLower(value)]
	return ok
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = struct{}{}
	}
	return set
}
