package destination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttauveron/gcp-iam-watcher/internal/platform/config"
)

func TestBuildComposesSelectedKinds(t *testing.T) {
	cfg := config.Config{
		DestTypes: []string{"slack", "email"},
		Slack:     config.SlackConfig{WebhookURL: "https://hooks.slack.com/services/T/B/x"},
		SMTP:      smtpConfig(),
	}

	d, err := Build(cfg, discard(), nil)
	require.NoError(t, err)

	c, ok := d.(*Composite)
	require.True(t, ok)
	assert.Len(t, c.destinations, 2)
}

func TestBuildSingleKindStillComposes(t *testing.T) {
	cfg := config.Config{
		DestTypes: []string{"slack"},
		Slack:     config.SlackConfig{WebhookURL: "https://hooks.slack.com/services/T/B/x"},
	}

	d, err := Build(cfg, discard(), nil)
	require.NoError(t, err)
	assert.IsType(t, &Composite{}, d)
}

func TestBuildWrapsFilteredKinds(t *testing.T) {
	cfg := config.Config{
		DestTypes: []string{"slack"},
		Slack:     config.SlackConfig{WebhookURL: "https://hooks.slack.com/services/T/B/x"},
		Filters: map[string]config.FilterDimensions{
			"slack": {Roles: []string{"roles/owner"}},
		},
	}

	d, err := Build(cfg, discard(), nil)
	require.NoError(t, err)

	c, ok := d.(*Composite)
	require.True(t, ok)
	require.Len(t, c.destinations, 1)
	assert.IsType(t, &Filter{}, c.destinations[0])
}

func TestBuildFailsLoudly(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
	}{
		{"no kinds selected", config.Config{}},
		{"unknown kind", config.Config{DestTypes: []string{"pager"}}},
		{"slack without credentials", config.Config{DestTypes: []string{"slack"}}},
		{"email without addresses", config.Config{DestTypes: []string{"email"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.cfg, discard(), nil)
			require.ErrorIs(t, err, ErrMisconfigured)
		})
	}
}
