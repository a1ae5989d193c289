package projection_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"stagequeue/internal/projection"
	"stagequeue/internal/requests"
)

var base = time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC)

func req(id string, status requests.Status, minute int) requests.Request {
	return requests.Request{
		ID:        id,
		Status:    status,
		Song:      "song-" + id,
		CreatedAt: base.Add(time.Duration(minute) * time.Minute),
	}
}

func ids(list []requests.Request) []string {
	out := make([]string, 0, len(list))
	for _, r := range list {
		out = append(out, r.ID)
	}
	return out
}

func TestProjectOrdersByCreatedAt(t *testing.T) {
	input := []requests.Request{
		req("q2", requests.StatusQueued, 5),
		req("p2", requests.StatusPending, 4),
		req("h1", requests.StatusCompleted, 1),
		req("q1", requests.StatusQueued, 2),
		req("p1", requests.StatusPending, 3),
		req("h2", requests.StatusRejected, 6),
		req("n1", requests.StatusPlaying, 0),
	}

	views := projection.Project(input)

	if diff := cmp.Diff([]string{"p1", "p2"}, ids(views.Pending)); diff != "" {
		t.Fatalf("pending mismatch (-want +got):\n%s", diff)
	}
	var upNext []string
	for i, slot := range views.UpNext {
		if slot.Position != i+1 {
			t.Fatalf("slot %d has position %d", i, slot.Position)
		}
		upNext = append(upNext, slot.Request.ID)
	}
	if diff := cmp.Diff([]string{"q1", "q2"}, upNext); diff != "" {
		t.Fatalf("up next mismatch (-want +got):\n%s", diff)
	}
	if views.NowPlaying == nil || views.NowPlaying.ID != "n1" {
		t.Fatalf("unexpected now playing: %#v", views.NowPlaying)
	}
	if diff := cmp.Diff([]string{"h2", "h1"}, ids(views.History)); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
	wantCounts := map[requests.Status]int{
		requests.StatusPending:   2,
		requests.StatusQueued:    2,
		requests.StatusPlaying:   1,
		requests.StatusCompleted: 1,
		requests.StatusRejected:  1,
	}
	if diff := cmp.Diff(wantCounts, views.Counts); diff != "" {
		t.Fatalf("counts mismatch (-want +got):\n%s", diff)
	}
	if len(views.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", views.Warnings)
	}
}

func TestProjectIsIndependentOfInputOrder(t *testing.T) {
	forward := []requests.Request{
		req("a", requests.StatusQueued, 1),
		req("b", requests.StatusQueued, 2),
		req("c", requests.StatusQueued, 3),
		req("d", requests.StatusPending, 4),
	}
	reversed := make([]requests.Request, len(forward))
	for i := range forward {
		reversed[len(forward)-1-i] = forward[i]
	}

	if diff := cmp.Diff(projection.Project(forward), projection.Project(reversed)); diff != "" {
		t.Fatalf("projection depends on input order (-forward +reversed):\n%s", diff)
	}
}

func TestProjectToleratesMultiplePlaying(t *testing.T) {
	views := projection.Project([]requests.Request{
		req("late", requests.StatusPlaying, 9),
		req("early", requests.StatusPlaying, 1),
	})
	if views.NowPlaying == nil || views.NowPlaying.ID != "early" {
		t.Fatalf("expected earliest playing request, got %#v", views.NowPlaying)
	}
	if len(views.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", views.Warnings)
	}
}

func TestProjectCapsHistory(t *testing.T) {
	var input []requests.Request
	for i := 0; i < 60; i++ {
		status := requests.StatusCompleted
		if i%3 == 0 {
			status = requests.StatusRejected
		}
		input = append(input, req(fmt.Sprintf("h%02d", i), status, i))
	}

	views := projection.Project(input)
	if len(views.History) != projection.HistoryLimit {
		t.Fatalf("expected %d history entries, got %d", projection.HistoryLimit, len(views.History))
	}
	if views.History[0].ID != "h59" {
		t.Fatalf("expected newest first, got %s", views.History[0].ID)
	}
	for i := 1; i < len(views.History); i++ {
		if !views.History[i-1].CreatedAt.After(views.History[i].CreatedAt) {
			t.Fatalf("history not strictly descending at %d", i)
		}
	}
}

func TestProjectEmpty(t *testing.T) {
	views := projection.Project(nil)
	if views.NowPlaying != nil || len(views.Pending) != 0 || len(views.UpNext) != 0 || len(views.History) != 0 {
		t.Fatalf("expected empty views, got %#v", views)
	}
}

func TestForRoleDisplayHidesPendingAndHistory(t *testing.T) {
	views := projection.Project([]requests.Request{
		req("p", requests.StatusPending, 1),
		req("q", requests.StatusQueued, 2),
		req("h", requests.StatusRejected, 3),
	})

	display := views.ForRole(projection.RoleDisplay)
	if len(display.Pending) != 0 || len(display.History) != 0 {
		t.Fatalf("display must not see pending or history: %#v", display)
	}
	if len(display.UpNext) != 1 || display.Counts[requests.StatusPending] != 0 {
		t.Fatalf("unexpected display view: %#v", display)
	}
	if diff := cmp.Diff(views, views.ForRole(projection.RoleOperator)); diff != "" {
		t.Fatalf("operator view should be unchanged:\n%s", diff)
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want projection.Role
		ok   bool
	}{
		{"", projection.RoleOperator, true},
		{"Display", projection.RoleDisplay, true},
		{"marketing", projection.RoleMarketing, true},
		{"admin", "", false},
	}
	for _, tt := range tests {
		got, ok := projection.ParseRole(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ParseRole(%q) = %s, %v", tt.in, got, ok)
		}
	}
}
