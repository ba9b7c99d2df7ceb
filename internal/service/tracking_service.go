package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"flowbar/backend/internal/clock"
	apperrors "flowbar/backend/internal/errors"
	"flowbar/backend/internal/model"
	"flowbar/backend/internal/repository"
)

const (
	DefaultTickWidth  = 10 * time.Second
	DefaultGrantTTL   = 60 * time.Second
	DefaultHistoryCap = 5000
)

type TrackingOptions struct {
	// TickWidth is the focus time credited per sampler tick.
	TickWidth  time.Duration
	GrantTTL   time.Duration
	HistoryCap int
}

func (o TrackingOptions) withDefaults() TrackingOptions {
	if o.TickWidth < time.Second {
		o.TickWidth = DefaultTickWidth
	}
	if o.GrantTTL <= 0 {
		o.GrantTTL = DefaultGrantTTL
	}
	if o.HistoryCap <= 0 {
		o.HistoryCap = DefaultHistoryCap
	}
	return o
}

// TrackingService owns TimeData and the temporary access grants. Every
// read-modify-write of timeData happens under mu.
type TrackingService struct {
	store    Store
	settings *SettingsService
	clock    clock.Clock
	logger   *slog.Logger
	opts     TrackingOptions

	mu sync.Mutex
}

// Grant is an unexpired temporary access grant.
type Grant struct {
	Domain    string `json:"domain"`
	ExpiresAt int64  `json:"expiresAt"`
}

func NewTrackingService(store Store, settings *SettingsService, c clock.Clock, logger *slog.Logger, opts TrackingOptions) *TrackingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrackingService{
		store:    store,
		settings: settings,
		clock:    c,
		logger:   logger.With("component", "tracking"),
		opts:     opts.withDefaults(),
	}
}

func (s *TrackingService) TickWidth() time.Duration {
	return s.opts.TickWidth
}

// RecordTick credits one tick of focus time to domain. Ticks outside the
// focus phase are ignored.
func (s *TrackingService) RecordTick(ctx context.Context, domain string, phase model.TimerState, now time.Time) error {
	domain = model.NormalizeDomain(domain)
	if phase != model.StateFocus || domain == "" {
		return nil
	}
	width := int(s.opts.TickWidth / time.Second)

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}

	data.TotalFocusTime += width
	data.FlowScores[model.DateKey(now)] += width
	if i := data.OpenFocusSession(domain); i >= 0 {
		data.SessionHistory[i].Duration += width
	} else {
		data.SessionHistory = append(data.SessionHistory, model.Session{
			ID:        uuid.NewString(),
			StartTime: now.Add(-s.opts.TickWidth).UnixMilli(),
			Duration:  width,
			Type:      model.SessionFocus,
			Domain:    domain,
		})
	}
	s.trimLocked(&data)
	return s.saveLocked(ctx, data)
}

// CloseOpenSession closes the open focus session on domain. It is a no-op
// when there is none.
func (s *TrackingService) CloseOpenSession(ctx context.Context, domain string, now time.Time) error {
	if model.NormalizeDomain(domain) == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	i := data.OpenFocusSession(domain)
	if i < 0 {
		return nil
	}
	data.SessionHistory[i].EndTime = model.Millis(now)
	return s.saveLocked(ctx, data)
}

// CloseAllOpenSessions closes every open session and returns how many were
// closed.
func (s *TrackingService) CloseAllOpenSessions(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.loadLocked(ctx)
	if err != nil {
		return 0, err
	}
	closed := 0
	for i := range data.SessionHistory {
		if data.SessionHistory[i].IsOpen() {
			data.SessionHistory[i].EndTime = model.Millis(now)
			closed++
		}
	}
	if closed == 0 {
		return 0, nil
	}
	return closed, s.saveLocked(ctx, data)
}

// TimeData returns the ledger, or an empty one when it cannot be read.
func (s *TrackingService) TimeData(ctx context.Context) model.TimeData {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.loadLocked(ctx)
	if err != nil {
		s.logger.Error("failed to read time data, using defaults", "error", err)
		return model.NewTimeData()
	}
	return data
}

func (s *TrackingService) FlowScore(ctx context.Context, domain string) int {
	distraction, focus, err := s.settings.SiteLists(ctx)
	if err != nil {
		s.logger.Warn("failed to read site lists", "error", err)
	}
	data := s.TimeData(ctx)
	return ComputeFlowScore(domain, data.SessionHistory, distraction, focus)
}

// DomainSummary builds the title and hover-modal content for domain.
func (s *TrackingService) DomainSummary(ctx context.Context, domain string) model.DomainSummary {
	domain = model.NormalizeDomain(domain)
	distraction, focus, err := s.settings.SiteLists(ctx)
	if err != nil {
		s.logger.Warn("failed to read site lists", "error", err)
	}
	data := s.TimeData(ctx)

	summary := model.DomainSummary{
		Domain:         domain,
		Score:          ComputeFlowScore(domain, data.SessionHistory, distraction, focus),
		TodaySeconds:   data.FlowScores[model.DateKey(s.clock.Now())],
		TotalFocusTime: data.TotalFocusTime,
	}
	summary.Grade, summary.GradeColor = model.Grade(summary.Score)
	switch categorize(domain, distraction, focus) {
	case siteDistraction:
		summary.IsDistraction = true
	case siteFocus:
		summary.IsFocusSite = true
	}
	for _, session := range data.SessionHistory {
		if session.Type == model.SessionFocus && model.SameSite(session.Domain, domain) {
			summary.DomainSeconds += session.Duration
		}
	}
	summary.OpenSession = domain != "" && data.OpenFocusSession(domain) >= 0
	summary.Summary = summaryText(summary)
	return summary
}

func summaryText(summary model.DomainSummary) string {
	var b strings.Builder
	if summary.Domain == "" {
		b.WriteString("No site")
	} else {
		fmt.Fprintf(&b, "%s on %s", model.FormatDuration(summary.DomainSeconds), summary.Domain)
	}
	fmt.Fprintf(&b, ", %s focused today", model.FormatDuration(summary.TodaySeconds))
	if summary.IsDistraction {
		b.WriteString(" (distraction site)")
	} else if summary.IsFocusSite {
		b.WriteString(" (focus site)")
	}
	return b.String()
}

// GrantTemporaryAccess lets domain through the gate until now + GrantTTL.
func (s *TrackingService) GrantTemporaryAccess(ctx context.Context, domain string) (time.Time, error) {
	domain = model.NormalizeDomain(domain)
	if domain == "" {
		return time.Time{}, errors.New("grant temporary access: empty domain")
	}
	expiry := s.clock.Now().Add(s.opts.GrantTTL)
	if err := s.store.Set(ctx, repository.PartitionLocal, map[string]interface{}{
		model.TempAccessKey(domain): expiry.UnixMilli(),
	}); err != nil {
		return time.Time{}, fmt.Errorf("grant temporary access to %s: %w", domain, err)
	}
	s.logger.Info("temporary access granted", "domain", domain, "expires_at", expiry)
	return expiry, nil
}

// TemporaryAccessExpiry returns the stored grant expiry for domain. The
// grant may already have expired.
func (s *TrackingService) TemporaryAccessExpiry(ctx context.Context, domain string) (time.Time, bool, error) {
	var expiry int64
	err := s.store.GetJSON(ctx, repository.PartitionLocal, model.TempAccessKey(domain), &expiry)
	if errors.Is(err, repository.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(expiry), true, nil
}

// ActiveGrants lists the grants that have not expired yet.
func (s *TrackingService) ActiveGrants(ctx context.Context) ([]Grant, *apperrors.APIError) {
	entries, err := s.store.List(ctx, repository.PartitionLocal, model.TempAccessKeyPrefix)
	if err != nil {
		s.logger.Error("failed to list grants", "error", err)
		return nil, apperrors.Internal("failed to list grants")
	}

	now := s.clock.Now()
	grants := make([]Grant, 0, len(entries))
	for _, entry := range entries {
		var expiry int64
		if err := json.Unmarshal(entry.Value, &expiry); err != nil {
			s.logger.Warn("ignoring malformed grant", "key", entry.Key, "error", err)
			continue
		}
		if now.After(time.UnixMilli(expiry)) {
			continue
		}
		grants = append(grants, Grant{
			Domain:    strings.TrimPrefix(entry.Key, model.TempAccessKeyPrefix),
			ExpiresAt: expiry,
		})
	}
	return grants, nil
}

// trimLocked drops the oldest closed sessions once the history exceeds the
// cap. Open sessions are kept.
func (s *TrackingService) trimLocked(data *model.TimeData) {
	excess := len(data.SessionHistory) - s.opts.HistoryCap
	if excess <= 0 {
		return
	}
	kept := make([]model.Session, 0, len(data.SessionHistory)-excess)
	for _, session := range data.SessionHistory {
		if excess > 0 && !session.IsOpen() {
			excess--
			continue
		}
		kept = append(kept, session)
	}
	data.SessionHistory = kept
}

func (s *TrackingService) loadLocked(ctx context.Context) (model.TimeData, error) {
	data := model.NewTimeData()
	err := s.store.GetJSON(ctx, repository.PartitionLocal, model.KeyTimeData, &data)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewTimeData(), nil
	}
	if err != nil {
		return model.NewTimeData(), fmt.Errorf("read time data: %w", err)
	}
	data.Normalize()
	return data, nil
}

func (s *TrackingService) saveLocked(ctx context.Context, data model.TimeData) error {
	if err := s.store.Set(ctx, repository.PartitionLocal, map[string]interface{}{model.KeyTimeData: data}); err != nil {
		return fmt.Errorf("write time data: %w", err)
	}
	return nil
}
