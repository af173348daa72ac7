package destination

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ttauveron/gcp-iam-watcher/internal/destination/mocks"
	"github.com/ttauveron/gcp-iam-watcher/internal/event"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func sampleEvent() *event.IamChange {
	return &event.IamChange{
		ResourceType:    "cloudresourcemanager.googleapis.com/Project",
		ResourceName:    "my-proj",
		ResourceDisplay: "My Project",
		Actor:           "admin@example.com",
		Source:          event.SourceAssetFeed,
		Timestamp:       "2024-05-01T10:00:00Z",
		LogsURL:         "https://console.cloud.google.com/logs/query;example",
		Changes: []event.ChangeGroup{{
			Type:    event.BindingAdded,
			Role:    "roles/editor",
			Members: []string{"user:a@example.com"},
		}},
	}
}

func TestCompositeDeliversToAllInOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	ev := sampleEvent()

	first := mocks.NewMockDestination(ctrl)
	second := mocks.NewMockDestination(ctrl)
	firstSend := first.EXPECT().Send(gomock.Any(), ev).Return(nil)
	second.EXPECT().Send(gomock.Any(), ev).Return(nil).After(firstSend)
	first.EXPECT().Name().Return("first").AnyTimes()
	second.EXPECT().Name().Return("second").AnyTimes()

	c := NewComposite(discard(), nil, first, second)
	require.NoError(t, c.Send(context.Background(), ev))
}

func TestCompositeFailureDoesNotStopSiblings(t *testing.T) {
	ctrl := gomock.NewController(t)
	ev := sampleEvent()

	failing := mocks.NewMockDestination(ctrl)
	failing.EXPECT().Send(gomock.Any(), ev).Return(errors.New("webhook down"))
	failing.EXPECT().Name().Return("slack").AnyTimes()

	healthy := mocks.NewMockDestination(ctrl)
	healthy.EXPECT().Send(gomock.Any(), ev).Return(nil)
	healthy.EXPECT().Name().Return("email").AnyTimes()

	c := NewComposite(discard(), nil, failing, healthy)
	require.NoError(t, c.Send(context.Background(), ev))
}

func TestCompositeContainsPanics(t *testing.T) {
	ctrl := gomock.NewController(t)
	ev := sampleEvent()

	panicking := mocks.NewMockDestination(ctrl)
	panicking.EXPECT().Send(gomock.Any(), ev).DoAndReturn(
		func(context.Context, *event.IamChange) error { panic("boom") })
	panicking.EXPECT().Name().Return("panicking").AnyTimes()

	healthy := mocks.NewMockDestination(ctrl)
	healthy.EXPECT().Send(gomock.Any(), ev).Return(nil)
	healthy.EXPECT().Name().Return("healthy").AnyTimes()

	c := NewComposite(discard(), nil, panicking, healthy)
	require.NoError(t, c.Send(context.Background(), ev))
}

func TestCompositeLogsAggregatedFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	ev := sampleEvent()

	failing := mocks.NewMockDestination(ctrl)
	failing.EXPECT().Send(gomock.Any(), ev).Return(errors.New("webhook down"))
	failing.EXPECT().Name().Return("slack").AnyTimes()

	var buf strings.Builder
	log := slog.New(slog.NewTextHandler(&buf, nil))

	c := NewComposite(log, nil, failing)
	require.NoError(t, c.Send(context.Background(), ev))

	out := buf.String()
	assert.Contains(t, out, "one or more destinations failed")
	assert.Contains(t, out, "slack: webhook down")
}

func TestCompositeEmptySetIsANoOp(t *testing.T) {
	c := NewComposite(discard(), nil)
	require.NoError(t, c.Send(context.Background(), sampleEvent()))
}
