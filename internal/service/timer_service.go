package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"flowbar/backend/internal/clock"
	apperrors "flowbar/backend/internal/errors"
	"flowbar/backend/internal/model"
	"flowbar/backend/internal/repository"
	"flowbar/backend/internal/scheduler"
	"flowbar/backend/internal/surface"
)

const DefaultRecomputeInterval = time.Second

type TimerOptions struct {
	// RecomputeInterval is how often timeLeft is recomputed and persisted
	// while a phase runs.
	RecomputeInterval time.Duration
}

// TimerService owns the timer aggregate. All transitions are serialised by
// mu and go through transitionLocked, which also reconciles the alarm, the
// recompute task and the tracking sampler with the new state.
type TimerService struct {
	store    Store
	tracking *TrackingService
	activity *Activity
	alarms   *scheduler.Alarms
	clock    clock.Clock
	notifier surface.Notifier
	logger   *slog.Logger
	opts     TimerOptions

	mu         sync.Mutex
	generation uint64
	recompute  *scheduler.Periodic
	sampler    *scheduler.Periodic
}

// StopResult is the answer to stop: the new timer info plus the focus
// seconds the stopped phase had used.
type StopResult struct {
	Info           model.TimerInfo `json:"info"`
	ElapsedSeconds int             `json:"elapsedSeconds"`
	ClosedSessions int             `json:"closedSessions"`
}

func NewTimerService(
	store Store,
	tracking *TrackingService,
	activity *Activity,
	alarms *scheduler.Alarms,
	c clock.Clock,
	notifier surface.Notifier,
	logger *slog.Logger,
	opts TimerOptions,
) *TimerService {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = surface.Discard{}
	}
	if opts.RecomputeInterval <= 0 {
		opts.RecomputeInterval = DefaultRecomputeInterval
	}
	return &TimerService{
		store:    store,
		tracking: tracking,
		activity: activity,
		alarms:   alarms,
		clock:    c,
		notifier: notifier,
		logger:   logger.With("component", "timer"),
		opts:     opts,
	}
}

func (s *TimerService) Start(ctx context.Context) (*model.TimerInfo, *apperrors.APIError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

func (s *TimerService) Pause(ctx context.Context) (*model.TimerInfo, *apperrors.APIError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauseLocked(ctx)
}

func (s *TimerService) Resume(ctx context.Context) (*model.TimerInfo, *apperrors.APIError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeLocked(ctx)
}

// Toggle starts a stopped timer, resumes a paused one and pauses a running
// one.
func (s *TimerService) Toggle(ctx context.Context) (*model.TimerInfo, *apperrors.APIError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, apiErr := s.loadForUpdateLocked(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	switch {
	case current.TimerState.IsRunning():
		return s.pauseLocked(ctx)
	case current.TimerState == model.StatePaused:
		return s.resumeLocked(ctx)
	default:
		return s.startLocked(ctx)
	}
}

func (s *TimerService) Reset(ctx context.Context) (*model.TimerInfo, *apperrors.APIError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, apiErr := s.loadForUpdateLocked(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	now := s.clock.Now()
	s.closeCurrentSessionLocked(ctx, now)

	next := stoppedFrom(current)
	if err := s.transitionLocked(ctx, current, next, "reset"); err != nil {
		return nil, apperrors.Internal("failed to save timer state")
	}
	info := s.infoFor(next, now)
	return &info, nil
}

// Stop resets the timer and closes every open focus session.
func (s *TimerService) Stop(ctx context.Context) (*StopResult, *apperrors.APIError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, apiErr := s.loadForUpdateLocked(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	now := s.clock.Now()

	elapsed := 0
	if phaseOf(current) == model.StateFocus && current.TimerState != model.StateStopped {
		elapsed = current.FocusDuration - current.RemainingAt(now)
		if elapsed < 0 {
			elapsed = 0
		}
	}
	closed, err := s.tracking.CloseAllOpenSessions(ctx, now)
	if err != nil {
		s.logger.Error("failed to close sessions on stop", "error", err)
	}

	next := stoppedFrom(current)
	if err := s.transitionLocked(ctx, current, next, "stop"); err != nil {
		return nil, apperrors.Internal("failed to save timer state")
	}
	s.logger.Info("timer stopped",
		"previous_state", current.TimerState,
		"elapsed_focus_seconds", elapsed,
		"closed_sessions", closed,
	)
	return &StopResult{Info: s.infoFor(next, now), ElapsedSeconds: elapsed, ClosedSessions: closed}, nil
}

// Info reports the timer with timeLeft recomputed from endTime. A read
// failure yields the stopped default.
func (s *TimerService) Info(ctx context.Context) model.TimerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	current, err := s.loadLocked(ctx)
	if err != nil {
		s.logger.Error("failed to read timer state, using defaults", "error", err)
		return s.infoFor(model.DefaultTimerSnapshot(), now)
	}
	return s.infoFor(current, now)
}

// State is the current timer state, stopped when it cannot be read.
func (s *TimerService) State(ctx context.Context) model.TimerState {
	return s.Info(ctx).TimerState
}

// HandleAlarm advances the phase when its wake-up fires.
func (s *TimerService) HandleAlarm(ctx context.Context, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.loadLocked(ctx)
	if err != nil {
		s.logger.Error("failed to read timer state on alarm", "alarm", name, "error", err)
		return
	}
	now := s.clock.Now()

	if !current.TimerState.IsRunning() {
		s.logger.Warn("stray alarm, forcing stopped", "alarm", name, "state", current.TimerState)
		if err := s.transitionLocked(ctx, current, stoppedFrom(current), "stray_alarm"); err != nil {
			s.logger.Error("failed to force stopped", "error", err)
		}
		return
	}
	if name != current.TimerState.AlarmName() {
		s.logger.Warn("alarm does not match running phase, ignored", "alarm", name, "state", current.TimerState)
		return
	}
	if current.EndTime != nil && now.Before(current.EndAt()) {
		s.logger.Debug("alarm fired early, rescheduling", "alarm", name, "end_time", current.EndAt())
		s.alarms.Schedule(name, current.EndAt())
		return
	}

	if err := s.advanceLocked(ctx, current, now); err != nil {
		s.logger.Error("failed to advance phase", "alarm", name, "error", err)
	}
}

// Restore reconciles the persisted timer with the wake-up machinery after
// the process (re)starts. A phase whose end passed while suspended advances
// as if its alarm had fired.
func (s *TimerService) Restore(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.loadLocked(ctx)
	if err != nil {
		s.logger.Error("failed to read timer state on restore", "error", err)
		s.reconcileLocked(model.DefaultTimerSnapshot())
		return
	}
	now := s.clock.Now()

	switch {
	case current.TimerState.IsRunning() && current.EndTime == nil:
		s.logger.Warn("running phase without end time, forcing stopped", "state", current.TimerState)
		err = s.transitionLocked(ctx, current, stoppedFrom(current), "restore_invalid")
	case current.TimerState.IsRunning() && !now.Before(current.EndAt()):
		s.logger.Info("phase ended while suspended", "state", current.TimerState, "end_time", current.EndAt())
		err = s.advanceLocked(ctx, current, now)
	case current.TimerState == model.StatePaused && (current.OriginalTimerType == nil || !current.OriginalTimerType.IsRunning()):
		s.logger.Warn("paused without original phase, forcing stopped")
		err = s.transitionLocked(ctx, current, stoppedFrom(current), "restore_invalid")
	default:
		current.TimeLeft = current.RemainingAt(now)
		err = s.transitionLocked(ctx, current, current, "restore")
	}
	if err != nil {
		s.logger.Error("failed to restore timer", "error", err)
		return
	}
	s.logger.Info("timer restored", "state", current.TimerState)
}

// RefreshIdle aligns a stopped timer's timeLeft with the configured focus
// duration.
func (s *TimerService) RefreshIdle(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.loadLocked(ctx)
	if err != nil {
		s.logger.Error("failed to read timer state on refresh", "error", err)
		return
	}
	if current.TimerState != model.StateStopped || current.TimeLeft == current.FocusDuration {
		return
	}
	if err := s.store.Set(ctx, repository.PartitionSync, map[string]interface{}{
		model.KeyTimeLeft: current.FocusDuration,
	}); err != nil {
		s.logger.Error("failed to refresh idle time left", "error", err)
	}
}

// Shutdown cancels the periodic tasks without touching persisted state.
func (s *TimerService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.cancelTasksLocked()
	s.alarms.ClearAll()
}

func (s *TimerService) startLocked(ctx context.Context) (*model.TimerInfo, *apperrors.APIError) {
	current, apiErr := s.loadForUpdateLocked(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	switch {
	case current.TimerState == model.StatePaused:
		return nil, apperrors.Conflict("timer_paused", "timer is paused, use resume", nil)
	case current.TimerState.IsRunning():
		return nil, apperrors.Conflict("timer_running", "timer is already running", nil)
	}

	now := s.clock.Now()
	next := phaseFrom(current, model.StateFocus, now)
	if err := s.transitionLocked(ctx, current, next, "start"); err != nil {
		return nil, apperrors.Internal("failed to save timer state")
	}
	info := s.infoFor(next, now)
	return &info, nil
}

func (s *TimerService) pauseLocked(ctx context.Context) (*model.TimerInfo, *apperrors.APIError) {
	current, apiErr := s.loadForUpdateLocked(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	if !current.TimerState.IsRunning() {
		return nil, apperrors.Conflict("timer_not_running", "timer is not running", nil)
	}

	now := s.clock.Now()
	s.closeCurrentSessionLocked(ctx, now)

	next := current
	next.OriginalTimerType = model.StatePtr(current.TimerState)
	next.TimerState = model.StatePaused
	residual := current.RemainingMillisAt(now)
	next.TimeLeft = int(residual / 1000)
	next.PausedRemainingMs = &residual
	next.EndTime = nil
	if err := s.transitionLocked(ctx, current, next, "pause"); err != nil {
		return nil, apperrors.Internal("failed to save timer state")
	}
	info := s.infoFor(next, now)
	return &info, nil
}

func (s *TimerService) resumeLocked(ctx context.Context) (*model.TimerInfo, *apperrors.APIError) {
	current, apiErr := s.loadForUpdateLocked(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	if current.TimerState != model.StatePaused {
		return nil, apperrors.Conflict("timer_not_paused", "timer is not paused", nil)
	}

	phase := model.StateFocus
	if current.OriginalTimerType != nil && current.OriginalTimerType.IsRunning() {
		phase = *current.OriginalTimerType
	}

	now := s.clock.Now()
	next := current
	next.TimerState = phase
	next.OriginalTimerType = nil
	next.EndTime = model.Millis(now.Add(time.Duration(current.RemainingMillisAt(now)) * time.Millisecond))
	next.PausedRemainingMs = nil
	if err := s.transitionLocked(ctx, current, next, "resume"); err != nil {
		return nil, apperrors.Internal("failed to save timer state")
	}
	info := s.infoFor(next, now)
	return &info, nil
}

// advanceLocked moves a finished phase to the next one: focus to break,
// break to focus.
func (s *TimerService) advanceLocked(ctx context.Context, current model.TimerSnapshot, now time.Time) error {
	nextPhase := model.StateFocus
	if current.TimerState == model.StateFocus {
		nextPhase = model.StateBreak
		if _, err := s.tracking.CloseAllOpenSessions(ctx, now); err != nil {
			s.logger.Error("failed to close focus sessions at phase end", "error", err)
		}
	}
	next := phaseFrom(current, nextPhase, now)
	return s.transitionLocked(ctx, current, next, "phase_complete")
}

// transitionLocked persists next and brings every side effect in line with
// it. It is the only place timer state is written.
func (s *TimerService) transitionLocked(ctx context.Context, previous, next model.TimerSnapshot, reason string) error {
	if err := s.saveLocked(ctx, next); err != nil {
		return err
	}
	s.reconcileLocked(next)
	s.emitLocked(ctx, previous, next)

	if previous.TimerState != next.TimerState {
		s.logger.Info("timer transition",
			"from", previous.TimerState,
			"to", next.TimerState,
			"reason", reason,
			"time_left", next.TimeLeft,
		)
	}
	return nil
}

// reconcileLocked arms the alarm and periodic tasks a running phase needs,
// and cancels everything otherwise.
func (s *TimerService) reconcileLocked(next model.TimerSnapshot) {
	s.generation++
	s.cancelTasksLocked()

	for _, phase := range []model.TimerState{model.StateFocus, model.StateBreak} {
		if phase != next.TimerState {
			s.alarms.Clear(phase.AlarmName())
		}
	}
	if !next.TimerState.IsRunning() || next.EndTime == nil {
		return
	}

	s.alarms.Schedule(next.TimerState.AlarmName(), next.EndAt())

	generation := s.generation
	s.recompute = scheduler.Every(s.clock, s.opts.RecomputeInterval, func(now time.Time) {
		s.recomputeTick(generation, now)
	})
	if next.TimerState == model.StateFocus {
		s.sampler = scheduler.Every(s.clock, s.tracking.TickWidth(), func(now time.Time) {
			s.sampleTick(generation, now)
		})
	}
}

func (s *TimerService) cancelTasksLocked() {
	s.recompute.Cancel()
	s.sampler.Cancel()
	s.recompute = nil
	s.sampler = nil
}

func (s *TimerService) recomputeTick(generation uint64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return
	}

	ctx := context.Background()
	current, err := s.loadLocked(ctx)
	if err != nil {
		s.logger.Warn("recompute skipped", "error", err)
		return
	}
	if !current.TimerState.IsRunning() {
		return
	}
	timeLeft := current.RemainingAt(now)
	if timeLeft != current.TimeLeft {
		if err := s.store.Set(ctx, repository.PartitionSync, map[string]interface{}{
			model.KeyTimeLeft: timeLeft,
		}); err != nil {
			s.logger.Warn("failed to persist time left", "error", err)
		}
	}
	s.notifier.Notify(ctx, surface.BadgeFor(current.TimerState, timeLeft, now))
}

// sampleTick credits focus time to the tracked domain. It holds mu so a
// concurrent pause cannot reopen the session it just closed.
func (s *TimerService) sampleTick(generation uint64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return
	}

	domain := s.activity.TrackedDomain()
	if domain == "" {
		return
	}
	if err := s.tracking.RecordTick(context.Background(), domain, model.StateFocus, now); err != nil {
		s.logger.Warn("failed to record focus tick", "domain", domain, "error", err)
	}
}

// MoveActivity applies an activity change and closes the session of the
// domain it left. It shares mu with sampleTick, so a tick never lands on a
// domain that was just left. change must not call back into the timer.
func (s *TimerService) MoveActivity(ctx context.Context, change func() (left, entered string)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	left, entered := change()
	if left == "" || model.SameSite(left, entered) {
		return
	}
	if err := s.tracking.CloseOpenSession(ctx, left, s.clock.Now()); err != nil {
		s.logger.Error("failed to close session", "domain", left, "error", err)
	}
}

func (s *TimerService) closeCurrentSessionLocked(ctx context.Context, now time.Time) {
	domain := s.activity.Snapshot().Domain
	if domain == "" {
		return
	}
	if err := s.tracking.CloseOpenSession(ctx, domain, now); err != nil {
		s.logger.Error("failed to close focus session", "domain", domain, "error", err)
	}
}

func (s *TimerService) emitLocked(ctx context.Context, previous, next model.TimerSnapshot) {
	now := s.clock.Now()
	s.notifier.Notify(ctx, surface.BorderFor(next.TimerState, now))
	s.notifier.Notify(ctx, surface.BadgeFor(next.TimerState, next.RemainingAt(now), now))
	if previous.TimerState != next.TimerState {
		s.notifier.Notify(ctx, surface.Effect{
			Kind:     surface.KindPhase,
			State:    next.TimerState,
			Previous: previous.TimerState,
			Text:     model.FormatClock(next.RemainingAt(now)),
			At:       now,
		})
	}
}

func (s *TimerService) infoFor(snapshot model.TimerSnapshot, now time.Time) model.TimerInfo {
	timeLeft := snapshot.RemainingAt(now)
	return model.TimerInfo{
		TimeLeft:          timeLeft,
		TimerState:        snapshot.TimerState,
		TotalDuration:     snapshot.DurationFor(phaseOf(snapshot)),
		EndTime:           snapshot.EndTime,
		OriginalTimerType: snapshot.OriginalTimerType,
		Display:           model.FormatClock(timeLeft),
	}
}

func (s *TimerService) loadForUpdateLocked(ctx context.Context) (model.TimerSnapshot, *apperrors.APIError) {
	current, err := s.loadLocked(ctx)
	if err != nil {
		s.logger.Error("failed to read timer state", "error", err)
		return current, apperrors.Internal("failed to read timer state")
	}
	return current, nil
}

func (s *TimerService) loadLocked(ctx context.Context) (model.TimerSnapshot, error) {
	snapshot := model.DefaultTimerSnapshot()

	values, err := s.store.Get(ctx, repository.PartitionSync, model.TimerKeys...)
	if err != nil {
		return model.DefaultTimerSnapshot(), fmt.Errorf("read timer state: %w", err)
	}
	if err := decodeInto(values, &snapshot); err != nil {
		return model.DefaultTimerSnapshot(), fmt.Errorf("decode timer state: %w", err)
	}

	if !snapshot.TimerState.Valid() {
		snapshot.TimerState = model.StateStopped
	}
	if snapshot.FocusDuration <= 0 {
		snapshot.FocusDuration = model.DefaultFocusDurationSeconds
	}
	if snapshot.BreakDuration <= 0 {
		snapshot.BreakDuration = model.DefaultBreakDurationSeconds
	}
	if _, ok := values[model.KeyTimeLeft]; !ok {
		snapshot.TimeLeft = snapshot.FocusDuration
	}
	return snapshot, nil
}

func (s *TimerService) saveLocked(ctx context.Context, snapshot model.TimerSnapshot) error {
	if err := s.store.Set(ctx, repository.PartitionSync, map[string]interface{}{
		model.KeyTimerState:        snapshot.TimerState,
		model.KeyOriginalTimerType: snapshot.OriginalTimerType,
		model.KeyEndTime:           snapshot.EndTime,
		model.KeyTimeLeft:          snapshot.TimeLeft,
		model.KeyPausedRemaining:   snapshot.PausedRemainingMs,
	}); err != nil {
		return fmt.Errorf("write timer state: %w", err)
	}
	return nil
}

// phaseOf is the phase a snapshot belongs to: the running phase, the phase
// a pause interrupted, or focus when stopped.
func phaseOf(snapshot model.TimerSnapshot) model.TimerState {
	switch {
	case snapshot.TimerState.IsRunning():
		return snapshot.TimerState
	case snapshot.TimerState == model.StatePaused && snapshot.OriginalTimerType != nil:
		return *snapshot.OriginalTimerType
	default:
		return model.StateFocus
	}
}

func phaseFrom(current model.TimerSnapshot, phase model.TimerState, now time.Time) model.TimerSnapshot {
	next := current
	duration := current.DurationFor(phase)
	next.TimerState = phase
	next.OriginalTimerType = nil
	next.TimeLeft = duration
	next.PausedRemainingMs = nil
	next.EndTime = model.Millis(now.Add(time.Duration(duration) * time.Second))
	return next
}

func stoppedFrom(current model.TimerSnapshot) model.TimerSnapshot {
	next := current
	next.TimerState = model.StateStopped
	next.OriginalTimerType = nil
	next.EndTime = nil
	next.PausedRemainingMs = nil
	next.TimeLeft = current.FocusDuration
	return next
}
