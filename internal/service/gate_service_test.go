package service

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowbar/backend/internal/model"
)

func newGateHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, 10*time.Second)
	h.saveSettings(t, model.Settings{
		FocusDuration:    1500,
		BreakDuration:    300,
		DistractionSites: "youtube.com, reddit.com",
	})
	return h
}

func TestGateAllowsOutsideFocus(t *testing.T) {
	h := newGateHarness(t)

	decision := h.gate.CheckNavigation(h.ctx, "https://www.youtube.com/watch?v=1")
	assert.Equal(t, GateAllow, decision.Action)
	assert.Equal(t, "not_in_focus", decision.Reason)
}

func TestGateRedirectsListedSiteDuringFocus(t *testing.T) {
	h := newGateHarness(t)
	_, apiErr := h.timer.Start(h.ctx)
	require.Nil(t, apiErr)

	original := "https://www.youtube.com/watch?v=1&t=2"
	decision := h.gate.CheckNavigation(h.ctx, original)
	require.Equal(t, GateRedirect, decision.Action)
	assert.Equal(t, "www.youtube.com", decision.Domain)

	redirect, err := url.Parse(decision.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, "chrome-extension", redirect.Scheme)
	assert.Equal(t, "/sanctuary.html", redirect.Path)
	assert.Equal(t, "www.youtube.com", redirect.Query().Get("site"))
	assert.Equal(t, original, redirect.Query().Get("url"))

	assert.Equal(t, GateAllow, h.gate.CheckNavigation(h.ctx, "https://go.dev/").Action)
	assert.Equal(t, GateAllow, h.gate.CheckNavigation(h.ctx, "chrome://extensions").Action)
}

func TestGateGrantBoundary(t *testing.T) {
	h := newGateHarness(t)
	_, apiErr := h.timer.Start(h.ctx)
	require.Nil(t, apiErr)

	result, apiErr := h.gate.AllowFor(h.ctx, "reddit.com", "https://www.reddit.com/r/golang")
	require.Nil(t, apiErr)
	assert.Equal(t, "reddit.com", result.Site)
	assert.Equal(t, "https://www.reddit.com/r/golang", result.Target)
	expiry := time.UnixMilli(result.ExpiresAt)
	assert.Equal(t, epoch.Add(time.Minute), expiry)

	h.clock.Advance(expiry.Sub(h.clock.Now()) - time.Millisecond)
	assert.Equal(t, GateAllow, h.gate.CheckNavigation(h.ctx, "https://www.reddit.com/").Action, "T-1ms")

	h.clock.Advance(2 * time.Millisecond)
	assert.Equal(t, GateRedirect, h.gate.CheckNavigation(h.ctx, "https://www.reddit.com/").Action, "T+1ms")
}

func TestAllowForRejectsEmptySite(t *testing.T) {
	h := newGateHarness(t)
	_, apiErr := h.gate.AllowFor(h.ctx, "  ", "")
	require.NotNil(t, apiErr)
	assert.Equal(t, "invalid_site", apiErr.Code)
}

func TestProceedTargetFallsBackToSite(t *testing.T) {
	target, apiErr := ProceedTarget("youtube.com", "https://www.youtube.com/watch?v=1")
	require.Nil(t, apiErr)
	assert.Equal(t, "https://www.youtube.com/watch?v=1", target)

	target, apiErr = ProceedTarget("YouTube.com", "%%not a url")
	require.Nil(t, apiErr)
	assert.Equal(t, "https://youtube.com", target)

	_, apiErr = ProceedTarget("", "")
	require.NotNil(t, apiErr)
}
