package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowbar/backend/internal/app"
	"flowbar/backend/internal/client"
	"flowbar/backend/internal/clock"
	"flowbar/backend/internal/config"
	apperrors "flowbar/backend/internal/errors"
	"flowbar/backend/internal/model"
	"flowbar/backend/internal/surface"
	"flowbar/backend/internal/testutil"
)

func startDaemon(t *testing.T, cfg config.Config) (*httptest.Server, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	daemon, err := app.New(cfg, testutil.OpenDB(t), fake, nil)
	require.NoError(t, err)
	t.Cleanup(daemon.Close)

	server := httptest.NewServer(daemon.Engine)
	t.Cleanup(server.Close)
	return server, fake
}

func TestControlRoundTrip(t *testing.T) {
	server, fake := startDaemon(t, config.Default())
	c := client.New(server.URL+"/", "")
	ctx := context.Background()

	started, err := c.Control(ctx, "start")
	require.NoError(t, err)
	assert.Equal(t, model.StateFocus, started.TimerState)
	require.NotNil(t, started.EndTime)

	fake.Advance(30 * time.Second)
	paused, err := c.Control(ctx, "pause")
	require.NoError(t, err)
	assert.Equal(t, model.StatePaused, paused.TimerState)
	assert.Equal(t, 1470, paused.TimeLeft)

	info, err := c.Timer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "24:30", info.Display)

	stopped, err := c.Control(ctx, "stop")
	require.NoError(t, err)
	require.NotNil(t, stopped.ElapsedSeconds)
	assert.Equal(t, 30, *stopped.ElapsedSeconds)
}

func TestAPIErrorsAreTyped(t *testing.T) {
	server, _ := startDaemon(t, config.Default())
	c := client.New(server.URL, "")

	_, err := c.Control(context.Background(), "resume")
	require.Error(t, err)

	var apiErr *apperrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "timer_not_paused", apiErr.Code)
}

func TestPairStoresToken(t *testing.T) {
	cfg := config.Default()
	cfg.PairingSecret = "s3cret"
	server, _ := startDaemon(t, cfg)
	c := client.New(server.URL, "")
	ctx := context.Background()

	_, err := c.Timer(ctx)
	var apiErr *apperrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	token, err := c.Pair(ctx, "tests", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, err = c.Timer(ctx)
	assert.NoError(t, err)
}

func TestAllowAndSummary(t *testing.T) {
	server, _ := startDaemon(t, config.Default())
	c := client.New(server.URL, "")
	ctx := context.Background()

	grant, err := c.Allow(ctx, "https://www.reddit.com/r/golang")
	require.NoError(t, err)
	assert.Equal(t, "reddit.com", grant.Site)
	assert.Equal(t, "https://www.reddit.com", grant.Target)

	summary, err := c.Summary(ctx, "go.dev")
	require.NoError(t, err)
	assert.Equal(t, "go.dev", summary.Domain)
	assert.False(t, summary.OpenSession)
}

func TestEffectsStream(t *testing.T) {
	server, _ := startDaemon(t, config.Default())
	c := client.New(server.URL, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.Control(ctx, "start")
	require.NoError(t, err)

	effects := make(chan surface.Effect, 8)
	done := make(chan error, 1)
	go func() { done <- c.Effects(ctx, effects) }()

	select {
	case effect := <-effects:
		assert.NotEmpty(t, effect.Kind)
		assert.Equal(t, model.StateFocus, effect.State)
	case <-ctx.Done():
		t.Fatal("no effect received")
	}

	cancel()
	assert.NoError(t, <-done)
}
