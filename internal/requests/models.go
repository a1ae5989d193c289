package requests

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a song request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusQueued    Status = "queued"
	StatusPlaying   Status = "playing"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
)

var allStatuses = []Status{
	StatusPending,
	StatusQueued,
	StatusPlaying,
	StatusCompleted,
	StatusRejected,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ActiveStatuses are the statuses shown on the live queue.
func ActiveStatuses() []Status {
	return []Status{StatusPending, StatusQueued, StatusPlaying}
}

// HistoryStatuses are the terminal statuses shown in history.
func HistoryStatuses() []Status {
	return []Status{StatusCompleted, StatusRejected}
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further mutation is permitted.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// BackingTrack describes what the singer wants to perform over.
type BackingTrack string

const (
	BackingKaraoke  BackingTrack = "karaoke"
	BackingOriginal BackingTrack = "original"
	BackingNone     BackingTrack = "none"
)

// ParseBackingTrack converts a string into a known BackingTrack. Empty input
// selects karaoke, matching the submission form default.
func ParseBackingTrack(value string) (BackingTrack, bool) {
	switch BackingTrack(strings.ToLower(strings.TrimSpace(value))) {
	case "", BackingKaraoke:
		return BackingKaraoke, true
	case BackingOriginal:
		return BackingOriginal, true
	case BackingNone:
		return BackingNone, true
	default:
		return "", false
	}
}

// Request is one attendee's song submission.
type Request struct {
	ID             string
	SingerName     string
	IGHandle       string
	Song           string
	Artist         string
	BackingTrack   BackingTrack
	TechnicalNeeds string
	YouTubeURL     string
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsTerminal reports whether the request is completed or rejected.
func (r Request) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// HasTrack reports whether a performance track URL has been assigned.
func (r Request) HasTrack() bool {
	return strings.TrimSpace(r.YouTubeURL) != ""
}

// Theme selects the display color scheme.
type Theme string

const (
	ThemeDefault   Theme = "default"
	ThemeOrange    Theme = "orange"
	ThemeChristmas Theme = "christmas"
)

// ParseTheme maps unrecognized values to ThemeDefault. The boolean reports
// whether the input named a known theme.
func ParseTheme(value string) (Theme, bool) {
	switch Theme(strings.ToLower(strings.TrimSpace(value))) {
	case ThemeDefault:
		return ThemeDefault, true
	case ThemeOrange:
		return ThemeOrange, true
	case ThemeChristmas:
		return ThemeChristmas, true
	default:
		return ThemeDefault, false
	}
}

// Settings is the singleton configuration record consumed by displays.
type Settings struct {
	Theme     Theme
	UpdatedAt time.Time
}
