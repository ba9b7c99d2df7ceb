package model

import "time"

type SessionType string

const (
	SessionFocus SessionType = "focus"
	SessionBreak SessionType = "break"
)

// Session is one contiguous stretch of time on a domain. A nil EndTime means
// the session is still open.
type Session struct {
	ID        string      `json:"id"`
	StartTime int64       `json:"startTime"`
	EndTime   *int64      `json:"endTime"`
	Duration  int         `json:"duration"`
	Type      SessionType `json:"type"`
	Domain    string      `json:"domain"`
}

func (s Session) IsOpen() bool {
	return s.EndTime == nil
}

// TimeData is the local-partition tracking ledger.
type TimeData struct {
	// FlowScores maps an ISO date to the focus seconds accumulated that day.
	FlowScores     map[string]int `json:"flowScores"`
	TotalFocusTime int            `json:"totalFocusTime"`
	SessionHistory []Session      `json:"sessionHistory"`
}

func NewTimeData() TimeData {
	return TimeData{
		FlowScores:     map[string]int{},
		SessionHistory: []Session{},
	}
}

// Normalize fills nil collections left by older or hand-edited blobs.
func (d *TimeData) Normalize() {
	if d.FlowScores == nil {
		d.FlowScores = map[string]int{}
	}
	if d.SessionHistory == nil {
		d.SessionHistory = []Session{}
	}
}

// OpenFocusSession returns the index of the open focus session on domain,
// or -1.
func (d *TimeData) OpenFocusSession(domain string) int {
	for i := len(d.SessionHistory) - 1; i >= 0; i-- {
		session := d.SessionHistory[i]
		if session.Type == SessionFocus && session.IsOpen() && SameSite(session.Domain, domain) {
			return i
		}
	}
	return -1
}

// DateKey formats the flowScores key for t in its own location.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// DomainSummary is the title/hover-modal payload for one domain.
type DomainSummary struct {
	Domain         string `json:"domain"`
	Score          int    `json:"score"`
	Grade          string `json:"grade"`
	GradeColor     string `json:"gradeColor"`
	DomainSeconds  int    `json:"domainSeconds"`
	TodaySeconds   int    `json:"todaySeconds"`
	TotalFocusTime int    `json:"totalFocusTime"`
	Summary        string `json:"summary"`
	IsDistraction  bool   `json:"isDistraction"`
	IsFocusSite    bool   `json:"isFocusSite"`
	OpenSession    bool   `json:"openSession"`
}
