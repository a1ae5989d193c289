package projection

import (
	"fmt"
	"slices"
	"strings"

	"stagequeue/internal/requests"
)

// HistoryLimit caps the history view.
const HistoryLimit = 50

// Role selects which views a consumer receives.
type Role string

const (
	// RoleOperator sees every view.
	RoleOperator Role = "operator"
	// RoleDisplay is the public screen: up next and now playing only.
	RoleDisplay Role = "display"
	// RoleMarketing sees every view with history always on.
	RoleMarketing Role = "marketing"
)

// ParseRole converts a string into a known Role.
func ParseRole(value string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case "", RoleOperator:
		return RoleOperator, true
	case RoleDisplay:
		return RoleDisplay, true
	case RoleMarketing:
		return RoleMarketing, true
	default:
		return "", false
	}
}

// Slot is a queued request with its derived 1-based position.
type Slot struct {
	Position int
	Request  requests.Request
}

// Views are the derived, read-only lists shown to consumers.
type Views struct {
	Pending    []requests.Request
	UpNext     []Slot
	NowPlaying *requests.Request
	History    []requests.Request
	Counts     map[requests.Status]int
	// Warnings report integrity problems tolerated while projecting.
	Warnings []string
}

// Project derives all views from the raw request set. It is pure: the same
// input always yields the same output, regardless of input order.
func Project(all []requests.Request) Views {
	views := Views{
		Pending: []requests.Request{},
		UpNext:  []Slot{},
		History: []requests.Request{},
		Counts:  make(map[requests.Status]int, len(requests.AllStatuses())),
	}

	var (
		queued  []requests.Request
		playing []requests.Request
	)
	for _, req := range all {
		views.Counts[req.Status]++
		switch req.Status {
		case requests.StatusPending:
			views.Pending = append(views.Pending, req)
		case requests.StatusQueued:
			queued = append(queued, req)
		case requests.StatusPlaying:
			playing = append(playing, req)
		case requests.StatusCompleted, requests.StatusRejected:
			views.History = append(views.History, req)
		}
	}

	slices.SortStableFunc(views.Pending, ascending)
	slices.SortStableFunc(queued, ascending)
	slices.SortStableFunc(playing, ascending)
	slices.SortStableFunc(views.History, descending)

	for i, req := range queued {
		views.UpNext = append(views.UpNext, Slot{Position: i + 1, Request: req})
	}
	if len(playing) > 0 {
		current := playing[0]
		views.NowPlaying = &current
		for _, extra := range playing[1:] {
			views.Warnings = append(views.Warnings,
				fmt.Sprintf("request %s is also playing; showing %s", extra.ID, current.ID))
		}
	}
	if len(views.History) > HistoryLimit {
		views.History = views.History[:HistoryLimit]
	}
	return views
}

// ForRole trims views down to what role may see.
func (v Views) ForRole(role Role) Views {
	if role != RoleDisplay {
		return v
	}
	return Views{
		Pending:    []requests.Request{},
		UpNext:     v.UpNext,
		NowPlaying: v.NowPlaying,
		History:    []requests.Request{},
		Counts: map[requests.Status]int{
			requests.StatusQueued:  v.Counts[requests.StatusQueued],
			requests.StatusPlaying: v.Counts[requests.StatusPlaying],
		},
		Warnings: v.Warnings,
	}
}

func ascending(a, b requests.Request) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func descending(a, b requests.Request) int {
	return ascending(b, a)
}
