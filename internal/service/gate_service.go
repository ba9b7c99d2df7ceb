package service

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"flowbar/backend/internal/clock"
	apperrors "flowbar/backend/internal/errors"
	"flowbar/backend/internal/model"
)

const DefaultSanctuaryURL = "chrome-extension://flowbar/sanctuary.html"

type GateAction string

const (
	GateAllow    GateAction = "allow"
	GateRedirect GateAction = "redirect"
)

// Decision is the gate's verdict on one navigation.
type Decision struct {
	Action      GateAction `json:"action"`
	Domain      string     `json:"domain,omitempty"`
	URL         string     `json:"url"`
	RedirectURL string     `json:"redirectUrl,omitempty"`
	Reason      string     `json:"reason"`
}

// AllowResult answers allowDistractionFor60s.
type AllowResult struct {
	Site      string `json:"site"`
	ExpiresAt int64  `json:"expiresAt"`
	Target    string `json:"target"`
}

// GateService decides whether a navigation is sent to the sanctuary page.
type GateService struct {
	timer        *TimerService
	tracking     *TrackingService
	settings     *SettingsService
	clock        clock.Clock
	logger       *slog.Logger
	sanctuaryURL string
}

func NewGateService(
	timer *TimerService,
	tracking *TrackingService,
	settings *SettingsService,
	c clock.Clock,
	logger *slog.Logger,
	sanctuaryURL string,
) *GateService {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(sanctuaryURL) == "" {
		sanctuaryURL = DefaultSanctuaryURL
	}
	return &GateService{
		timer:        timer,
		tracking:     tracking,
		settings:     settings,
		clock:        c,
		logger:       logger.With("component", "gate"),
		sanctuaryURL: sanctuaryURL,
	}
}

// CheckNavigation lets rawURL through unless the timer is in focus, its
// domain is a distraction site and no unexpired grant covers it.
func (s *GateService) CheckNavigation(ctx context.Context, rawURL string) Decision {
	decision := Decision{Action: GateAllow, URL: rawURL}

	host, ok := model.DomainFromURL(rawURL)
	if !ok {
		decision.Reason = "not_web_page"
		return decision
	}
	decision.Domain = host

	if s.timer.State(ctx) != model.StateFocus {
		decision.Reason = "not_in_focus"
		return decision
	}

	distraction, _, err := s.settings.SiteLists(ctx)
	if err != nil {
		s.logger.Error("failed to read distraction sites, allowing", "domain", host, "error", err)
		decision.Reason = "settings_unavailable"
		return decision
	}
	if !distraction.Contains(host) {
		decision.Reason = "not_listed"
		return decision
	}

	expiry, granted, err := s.tracking.TemporaryAccessExpiry(ctx, host)
	if err != nil {
		s.logger.Warn("failed to read temporary access grant", "domain", host, "error", err)
	}
	if granted && !s.clock.Now().After(expiry) {
		decision.Reason = "temporary_access"
		return decision
	}

	decision.Action = GateRedirect
	decision.Reason = "distraction_site"
	decision.RedirectURL = s.SanctuaryURL(host, rawURL)
	s.logger.Info("navigation redirected", "domain", host)
	return decision
}

// SanctuaryURL builds the interstitial address for a blocked navigation.
func (s *GateService) SanctuaryURL(site, original string) string {
	query := url.Values{}
	query.Set("site", site)
	query.Set("url", original)

	separator := "?"
	if strings.Contains(s.sanctuaryURL, "?") {
		separator = "&"
	}
	return s.sanctuaryURL + separator + query.Encode()
}

// AllowFor grants site temporary access and returns where to proceed to.
func (s *GateService) AllowFor(ctx context.Context, site, original string) (*AllowResult, *apperrors.APIError) {
	domain := model.NormalizeDomain(siteHost(site))
	if domain == "" {
		return nil, apperrors.BadRequest("invalid_site", "site is required")
	}
	expiry, err := s.tracking.GrantTemporaryAccess(ctx, domain)
	if err != nil {
		s.logger.Error("failed to grant temporary access", "domain", domain, "error", err)
		return nil, apperrors.Internal("failed to grant temporary access")
	}
	target, _ := ProceedTarget(site, original)
	return &AllowResult{Site: domain, ExpiresAt: expiry.UnixMilli(), Target: target}, nil
}

// ProceedTarget resolves where the sanctuary's proceed action goes: the
// original URL when it is a web page, otherwise https://<site>.
func ProceedTarget(site, original string) (string, *apperrors.APIError) {
	if _, ok := model.DomainFromURL(original); ok {
		return strings.TrimSpace(original), nil
	}
	host := siteHost(site)
	if host == "" {
		return "", apperrors.BadRequest("invalid_site", "site or url is required")
	}
	return "https://" + host, nil
}

// siteHost accepts a bare host or a URL and returns the lowercased host.
func siteHost(site string) string {
	site = strings.TrimSpace(site)
	if host, ok := model.DomainFromURL(site); ok {
		return host
	}
	if i := strings.IndexAny(site, "/?#"); i >= 0 {
		site = site[:i]
	}
	return strings.ToLower(site)
}
