package model

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

const (
	MinPhaseDurationSeconds = 60
	MaxPhaseDurationSeconds = 180 * 60
)

// Settings is the options-page view of the sync partition. Durations are
// seconds, site lists keep their raw comma-separated form.
type Settings struct {
	FocusDuration    int    `json:"focusDuration"`
	BreakDuration    int    `json:"breakDuration"`
	DistractionSites string `json:"distractionSites"`
	FocusSites       string `json:"focusSites"`
	Theme            Theme  `json:"theme,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{
		FocusDuration: DefaultFocusDurationSeconds,
		BreakDuration: DefaultBreakDurationSeconds,
	}
}

func (s Settings) Distraction() SiteList {
	return ParseSiteList(s.DistractionSites)
}

func (s Settings) Focus() SiteList {
	return ParseSiteList(s.FocusSites)
}
