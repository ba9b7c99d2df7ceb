package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "flowbar/backend/internal/errors"
	"flowbar/backend/internal/model"
	"flowbar/backend/internal/repository"
)

type SettingsService struct {
	store  Store
	logger *slog.Logger
}

func NewSettingsService(store Store, logger *slog.Logger) *SettingsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsService{store: store, logger: logger.With("component", "settings")}
}

// Get returns the stored settings with defaults for missing keys. A read
// failure is logged and answered with defaults.
func (s *SettingsService) Get(ctx context.Context) model.Settings {
	settings, err := loadSettings(ctx, s.store)
	if err != nil {
		s.logger.Error("failed to read settings, using defaults", "error", err)
		return model.DefaultSettings()
	}
	return settings
}

// SiteLists returns the parsed distraction and focus site lists.
func (s *SettingsService) SiteLists(ctx context.Context) (model.SiteList, model.SiteList, error) {
	settings, err := loadSettings(ctx, s.store)
	if err != nil {
		return nil, nil, err
	}
	return settings.Distraction(), settings.Focus(), nil
}

func (s *SettingsService) Update(ctx context.Context, input model.Settings) (*model.Settings, *apperrors.APIError) {
	if apiErr := validateDuration("focusDuration", input.FocusDuration); apiErr != nil {
		return nil, apiErr
	}
	if apiErr := validateDuration("breakDuration", input.BreakDuration); apiErr != nil {
		return nil, apiErr
	}
	if input.Theme != "" && !input.Theme.Valid() {
		return nil, apperrors.BadRequest("invalid_theme", "theme must be light or dark")
	}

	saved := model.Settings{
		FocusDuration:    input.FocusDuration,
		BreakDuration:    input.BreakDuration,
		DistractionSites: model.ParseSiteList(input.DistractionSites).String(),
		FocusSites:       model.ParseSiteList(input.FocusSites).String(),
		Theme:            input.Theme,
	}
	values := map[string]interface{}{
		model.KeyFocusDuration:    saved.FocusDuration,
		model.KeyBreakDuration:    saved.BreakDuration,
		model.KeyDistractionSites: saved.DistractionSites,
		model.KeyFocusSites:       saved.FocusSites,
	}
	if saved.Theme != "" {
		values[model.KeyTheme] = saved.Theme
	}

	if err := s.store.Set(ctx, repository.PartitionSync, values); err != nil {
		if errors.Is(err, repository.ErrQuotaExceeded) {
			return nil, apperrors.BadRequest("quota_exceeded", "site list is too long to store")
		}
		s.logger.Error("failed to save settings", "error", err)
		return nil, apperrors.Internal("failed to save settings")
	}

	s.logger.Info("settings updated",
		"focus_duration", saved.FocusDuration,
		"break_duration", saved.BreakDuration,
		"distraction_sites", len(model.ParseSiteList(saved.DistractionSites)),
		"focus_sites", len(model.ParseSiteList(saved.FocusSites)),
	)
	if saved.Theme == "" {
		saved.Theme = s.Get(ctx).Theme
	}
	return &saved, nil
}

func (s *SettingsService) SetTheme(ctx context.Context, theme model.Theme) *apperrors.APIError {
	if !theme.Valid() {
		return apperrors.BadRequest("invalid_theme", "theme must be light or dark")
	}
	if err := s.store.Set(ctx, repository.PartitionSync, map[string]interface{}{model.KeyTheme: theme}); err != nil {
		s.logger.Error("failed to save theme", "error", err)
		return apperrors.Internal("failed to save theme")
	}
	return nil
}

// MarkInstalled seeds default durations when none are stored and raises the
// firstInstall flag for the options page.
func (s *SettingsService) MarkInstalled(ctx context.Context) error {
	existing, err := s.store.Get(ctx, repository.PartitionSync, model.KeyFocusDuration, model.KeyBreakDuration)
	if err != nil {
		return fmt.Errorf("read durations: %w", err)
	}

	seed := map[string]interface{}{}
	if _, ok := existing[model.KeyFocusDuration]; !ok {
		seed[model.KeyFocusDuration] = model.DefaultFocusDurationSeconds
	}
	if _, ok := existing[model.KeyBreakDuration]; !ok {
		seed[model.KeyBreakDuration] = model.DefaultBreakDurationSeconds
	}
	if err := s.store.Set(ctx, repository.PartitionSync, seed); err != nil {
		return fmt.Errorf("seed durations: %w", err)
	}
	if err := s.store.Set(ctx, repository.PartitionLocal, map[string]interface{}{model.KeyFirstInstall: true}); err != nil {
		return fmt.Errorf("set first install flag: %w", err)
	}
	return nil
}

// ConsumeFirstInstall reports the firstInstall flag and removes it.
func (s *SettingsService) ConsumeFirstInstall(ctx context.Context) (bool, *apperrors.APIError) {
	var flag bool
	err := s.store.GetJSON(ctx, repository.PartitionLocal, model.KeyFirstInstall, &flag)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		s.logger.Error("failed to read first install flag", "error", err)
		return false, apperrors.Internal("failed to read first install flag")
	}
	if err := s.store.Remove(ctx, repository.PartitionLocal, model.KeyFirstInstall); err != nil {
		s.logger.Error("failed to clear first install flag", "error", err)
		return false, apperrors.Internal("failed to clear first install flag")
	}
	return flag, nil
}

func validateDuration(field string, seconds int) *apperrors.APIError {
	if seconds < model.MinPhaseDurationSeconds || seconds > model.MaxPhaseDurationSeconds {
		return apperrors.BadRequest(
			"invalid_duration",
			fmt.Sprintf("%s must be between %d and %d seconds", field, model.MinPhaseDurationSeconds, model.MaxPhaseDurationSeconds),
		)
	}
	return nil
}

func loadSettings(ctx context.Context, store Store) (model.Settings, error) {
	settings := model.DefaultSettings()
	values, err := store.Get(ctx, repository.PartitionSync, model.SettingsKeys...)
	if err != nil {
		return settings, err
	}
	if err := decodeInto(values, &settings); err != nil {
		return model.DefaultSettings(), fmt.Errorf("decode settings: %w", err)
	}
	if settings.FocusDuration <= 0 {
		settings.FocusDuration = model.DefaultFocusDurationSeconds
	}
	if settings.BreakDuration <= 0 {
		settings.BreakDuration = model.DefaultBreakDurationSeconds
	}
	return settings, nil
}
