package service

import (
	"sync"

	"flowbar/backend/internal/model"
)

// Activity is the browsing context: which tab is active, which domain it
// shows and whether the browser window has focus. The dispatcher changes it
// inside TimerService.MoveActivity and the timer's sampler reads it.
type Activity struct {
	mu            sync.RWMutex
	tabID         int
	domain        string
	windowFocused bool
}

// ActivitySnapshot is a point-in-time copy of Activity.
type ActivitySnapshot struct {
	TabID         int    `json:"tabId"`
	Domain        string `json:"domain"`
	WindowFocused bool   `json:"windowFocused"`
}

func NewActivity() *Activity {
	return &Activity{windowFocused: true}
}

func (a *Activity) Snapshot() ActivitySnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return ActivitySnapshot{TabID: a.tabID, Domain: a.domain, WindowFocused: a.windowFocused}
}

// SetActive records the active tab and its domain and returns the domain
// that was current before.
func (a *Activity) SetActive(tabID int, domain string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	previous := a.domain
	a.tabID = tabID
	a.domain = model.NormalizeDomain(domain)
	return previous
}

// SetDomain changes the domain of the active tab.
func (a *Activity) SetDomain(domain string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	previous := a.domain
	a.domain = model.NormalizeDomain(domain)
	return previous
}

func (a *Activity) IsActiveTab(tabID int) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tabID == tabID
}

// SetWindowFocused records window focus and returns the current domain.
func (a *Activity) SetWindowFocused(focused bool) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.windowFocused = focused
	return a.domain
}

// TrackedDomain is the domain that accrues focus time right now, or "" when
// the window is unfocused or no web page is active.
func (a *Activity) TrackedDomain() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.windowFocused {
		return ""
	}
	return a.domain
}
