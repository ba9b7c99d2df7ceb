package model

// Sync partition keys.
const (
	KeyTimerState        = "timerState"
	KeyOriginalTimerType = "originalTimerType"
	KeyEndTime           = "endTime"
	KeyTimeLeft          = "timeLeft"
	KeyPausedRemaining   = "pausedRemainingMs"
	KeyFocusDuration     = "focusDuration"
	KeyBreakDuration     = "breakDuration"
	KeyDistractionSites  = "distractionSites"
	KeyFocusSites        = "focusSites"
	KeyTheme             = "theme"
)

// Local partition keys.
const (
	KeyTimeData         = "timeData"
	KeyFirstInstall     = "firstInstall"
	TempAccessKeyPrefix = "tempAccess_"
)

// TimerKeys lists the sync keys that make up a timer snapshot.
var TimerKeys = []string{
	KeyTimerState,
	KeyOriginalTimerType,
	KeyEndTime,
	KeyTimeLeft,
	KeyPausedRemaining,
	KeyFocusDuration,
	KeyBreakDuration,
}

// SettingsKeys lists the sync keys edited on the options page.
var SettingsKeys = []string{
	KeyFocusDuration,
	KeyBreakDuration,
	KeyDistractionSites,
	KeyFocusSites,
	KeyTheme,
}

func TempAccessKey(domain string) string {
	return TempAccessKeyPrefix + NormalizeDomain(domain)
}
