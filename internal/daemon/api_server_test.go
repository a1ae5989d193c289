package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"stagequeue/internal/api"
	"stagequeue/internal/requests"
	"stagequeue/internal/testsupport"
)

const testPIN = "4321"

type testAPI struct {
	t       *testing.T
	daemon  *Daemon
	handler http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithAdminPIN(testPIN), testsupport.WithResetBatchSize(2))
	st := testsupport.MustOpenStore(t, cfg)
	d, err := New(cfg, st, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.api.feedWait = 100 * time.Millisecond
	return &testAPI{t: t, daemon: d, handler: d.api.server.Handler}
}

func (a *testAPI) do(method, path, body string, admin bool) *httptest.ResponseRecorder {
	a.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if admin {
		req.Header.Set(AdminPinHeader, testPIN)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func (a *testAPI) submit(singer, song, artist string) api.Request {
	a.t.Helper()
	body := `{"singerName":"` + singer + `","song":"` + song + `","artist":"` + artist + `"}`
	w := a.do(http.MethodPost, "/api/requests", body, false)
	if w.Code != http.StatusCreated {
		a.t.Fatalf("submit: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return decodeBody[api.RequestResponse](a.t, w).Request
}

func TestAPISubmitAndOperatorViews(t *testing.T) {
	a := newTestAPI(t)
	created := a.submit("Alex", "Angels", "Robbie Williams")
	if created.Status != "pending" || created.SearchURL == "" {
		t.Fatalf("unexpected created request: %#v", created)
	}
	if w := a.do(http.MethodPost, "/api/requests", `{"singerName":"Alex","artist":"Robbie Williams"}`, false); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing song, got %d", w.Code)
	} else if resp := decodeBody[api.ErrorResponse](t, w); resp.Kind != requests.KindValidation || resp.Field != "song" {
		t.Fatalf("unexpected validation payload: %#v", resp)
	}

	w := a.do(http.MethodGet, "/api/views?role=operator", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("views: expected 200, got %d", w.Code)
	}
	views := decodeBody[api.Views](t, w)
	if len(views.Pending) != 1 || views.Pending[0].ID != created.ID {
		t.Fatalf("expected created request pending, got %#v", views.Pending)
	}
	if views.Counts["pending"] != 1 {
		t.Fatalf("unexpected counts %v", views.Counts)
	}
}

func TestAPIAdminRoutesRequirePIN(t *testing.T) {
	a := newTestAPI(t)
	created := a.submit("Alex", "Angels", "Robbie Williams")

	path := "/api/requests/" + created.ID + "/approve"
	body := `{"youtubeUrl":"https://youtu.be/abc"}`
	if w := a.do(http.MethodPost, path, body, false); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without pin, got %d", w.Code)
	}

	w := a.do(http.MethodPost, path, body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decodeBody[api.RequestResponse](t, w).Request; got.Status != "queued" || got.YouTubeURL != "https://youtu.be/abc" {
		t.Fatalf("unexpected approved request: %#v", got)
	}

	w = a.do(http.MethodPost, path, body, true)
	if w.Code != http.StatusConflict {
		t.Fatalf("second approve: expected 409, got %d", w.Code)
	}
	if resp := decodeBody[api.ErrorResponse](t, w); resp.Kind != requests.KindPrecondition || resp.Status != "queued" {
		t.Fatalf("unexpected precondition payload: %#v", resp)
	}
}

func TestAPIUnknownRequestIsNotFound(t *testing.T) {
	a := newTestAPI(t)
	w := a.do(http.MethodPost, "/api/requests/missing/reject", "", true)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if resp := decodeBody[api.ErrorResponse](t, w); resp.Kind != requests.KindNotFound {
		t.Fatalf("unexpected kind %q", resp.Kind)
	}
	if w := a.do(http.MethodGet, "/api/requests/missing", "", false); w.Code != http.StatusNotFound {
		t.Fatalf("get: expected 404, got %d", w.Code)
	}
}

func TestAPIPlayDoneAndDisplayView(t *testing.T) {
	a := newTestAPI(t)
	first := a.submit("Alex", "Angels", "Robbie Williams")
	second := a.submit("Sam", "Valerie", "Amy Winehouse")
	for _, id := range []string{first.ID, second.ID} {
		if w := a.do(http.MethodPost, "/api/requests/"+id+"/approve", `{"youtubeUrl":"https://youtu.be/`+id+`"}`, true); w.Code != http.StatusOK {
			t.Fatalf("approve %s: %d", id, w.Code)
		}
	}
	if w := a.do(http.MethodPost, "/api/requests/"+second.ID+"/play", "", true); w.Code != http.StatusOK {
		t.Fatalf("play: %d %s", w.Code, w.Body.String())
	}

	views := decodeBody[api.Views](t, a.do(http.MethodGet, "/api/views?role=display", "", false))
	if views.NowPlaying == nil || views.NowPlaying.ID != second.ID {
		t.Fatalf("expected %s playing, got %#v", second.ID, views.NowPlaying)
	}
	if len(views.UpNext) != 1 || views.UpNext[0].Request.ID != first.ID || views.UpNext[0].Position != 1 {
		t.Fatalf("unexpected up next %#v", views.UpNext)
	}
	if len(views.Pending) != 0 || len(views.History) != 0 {
		t.Fatalf("display view leaked pending or history: %#v", views)
	}

	if w := a.do(http.MethodPost, "/api/requests/"+second.ID+"/done", "", true); w.Code != http.StatusOK {
		t.Fatalf("done: %d", w.Code)
	}
	views = decodeBody[api.Views](t, a.do(http.MethodGet, "/api/views?role=operator&history=1", "", false))
	if len(views.History) != 1 || views.History[0].ID != second.ID {
		t.Fatalf("expected done request in history, got %#v", views.History)
	}
}

func TestAPIEditRemoveAndSettings(t *testing.T) {
	a := newTestAPI(t)
	created := a.submit("Alex", "Angles", "Robbie Wiliams")

	w := a.do(http.MethodPatch, "/api/requests/"+created.ID, `{"song":"Angels","artist":"Robbie Williams"}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("edit: %d %s", w.Code, w.Body.String())
	}
	if got := decodeBody[api.RequestResponse](t, w).Request; got.Song != "Angels" || got.Artist != "Robbie Williams" {
		t.Fatalf("unexpected edited request %#v", got)
	}

	if w := a.do(http.MethodDelete, "/api/requests/"+created.ID, "", true); w.Code != http.StatusNoContent {
		t.Fatalf("remove: expected 204, got %d", w.Code)
	}
	if w := a.do(http.MethodGet, "/api/requests/"+created.ID, "", false); w.Code != http.StatusNotFound {
		t.Fatalf("removed request still readable: %d", w.Code)
	}

	if w := a.do(http.MethodPut, "/api/settings", `{"theme":"nope"}`, true); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown theme: expected 400, got %d", w.Code)
	}
	if w := a.do(http.MethodPut, "/api/settings", `{"theme":"orange"}`, true); w.Code != http.StatusOK {
		t.Fatalf("set theme: %d %s", w.Code, w.Body.String())
	}
	if got := decodeBody[api.Settings](t, a.do(http.MethodGet, "/api/settings", "", false)); got.Theme != "orange" {
		t.Fatalf("expected orange theme, got %q", got.Theme)
	}
}

func TestAPIRequestFeedLongPoll(t *testing.T) {
	a := newTestAPI(t)
	a.submit("Alex", "Angels", "Robbie Williams")

	first := decodeBody[api.RequestFeed](t, a.do(http.MethodGet, "/api/feed/requests?view=active", "", false))
	if first.View != "active" || len(first.Requests) != 1 || first.Revision == 0 {
		t.Fatalf("unexpected first snapshot %#v", first)
	}

	// Nothing changes: the poll times out and reports the same revision.
	idle := decodeBody[api.RequestFeed](t, a.do(http.MethodGet,
		"/api/feed/requests?view=active&wait=1&since="+strconv.FormatUint(first.Revision, 10), "", false))
	if idle.Revision != first.Revision {
		t.Fatalf("expected unchanged revision %d, got %d", first.Revision, idle.Revision)
	}

	a.daemon.api.feedWait = 5 * time.Second
	done := make(chan api.RequestFeed, 1)
	go func() {
		req := httptest.NewRequest(http.MethodGet,
			"/api/feed/requests?view=active&wait=1&since="+strconv.FormatUint(first.Revision, 10), nil)
		w := httptest.NewRecorder()
		a.handler.ServeHTTP(w, req)
		var feed api.RequestFeed
		_ = json.Unmarshal(w.Body.Bytes(), &feed)
		done <- feed
	}()
	time.Sleep(20 * time.Millisecond)
	if _, err := a.daemon.Engine().Submit(context.Background(), requests.Draft{SingerName: "Sam", Song: "Valerie", Artist: "Amy Winehouse"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case feed := <-done:
		if feed.Revision <= first.Revision || len(feed.Requests) != 2 {
			t.Fatalf("expected a newer snapshot with 2 requests, got %#v", feed)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("long poll did not return after a change")
	}

	if w := a.do(http.MethodGet, "/api/feed/requests?view=bogus", "", false); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown view, got %d", w.Code)
	}
}

func TestAPIFeedAnswersStaleEpochAtOnce(t *testing.T) {
	a := newTestAPI(t)
	a.submit("Alex", "Angels", "Robbie Williams")
	a.daemon.api.feedWait = 5 * time.Second

	first := decodeBody[api.SettingsFeed](t, a.do(http.MethodGet, "/api/feed/settings", "", false))
	if first.Epoch == "" || first.Epoch != a.daemon.store.Epoch() {
		t.Fatalf("expected the store epoch, got %q", first.Epoch)
	}

	since := strconv.FormatUint(first.Revision, 10)
	start := time.Now()
	stale := decodeBody[api.RequestFeed](t, a.do(http.MethodGet,
		"/api/feed/requests?view=active&wait=1&epoch=before-restart&since="+since, "", false))
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("stale epoch poll was held for %s", elapsed)
	}
	if stale.Epoch != first.Epoch || stale.Revision != first.Revision || len(stale.Requests) != 1 {
		t.Fatalf("unexpected snapshot for stale epoch %#v", stale)
	}
}

func TestAPIResetRequiresTwoConfirmations(t *testing.T) {
	a := newTestAPI(t)
	for i := range 5 {
		a.submit("Singer "+strconv.Itoa(i), "Song", "Artist")
	}

	w := a.do(http.MethodPost, "/api/reset", "", true)
	if w.Code != http.StatusCreated {
		t.Fatalf("arm: %d", w.Code)
	}
	ticket := decodeBody[api.ResetTicket](t, w)

	execPath := "/api/reset/" + ticket.Ticket + "/execute"
	if w := a.do(http.MethodPost, execPath, "", true); w.Code != http.StatusConflict {
		t.Fatalf("execute before confirm: expected 409, got %d", w.Code)
	}
	if w := a.do(http.MethodPost, "/api/reset/"+ticket.Ticket+"/confirm", "", true); w.Code != http.StatusOK {
		t.Fatalf("confirm: %d", w.Code)
	}
	if w := a.do(http.MethodPost, "/api/reset/"+ticket.Ticket+"/confirm", "", true); w.Code != http.StatusConflict {
		t.Fatalf("repeated confirm: expected 409, got %d", w.Code)
	}

	w = a.do(http.MethodPost, execPath, "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("execute: %d %s", w.Code, w.Body.String())
	}
	result := decodeBody[api.ResetResult](t, w)
	if result.Total != 5 || result.Batches != 3 || result.Deleted != 5 {
		t.Fatalf("unexpected reset result %#v", result)
	}
	if w := a.do(http.MethodPost, execPath, "", true); w.Code != http.StatusConflict {
		t.Fatalf("ticket reuse: expected 409, got %d", w.Code)
	}

	views := decodeBody[api.Views](t, a.do(http.MethodGet, "/api/views", "", false))
	if len(views.Pending) != 0 {
		t.Fatalf("expected empty queue after reset, got %d pending", len(views.Pending))
	}
}

func TestAPIStatus(t *testing.T) {
	a := newTestAPI(t)
	a.submit("Alex", "Angels", "Robbie Williams")

	w := a.do(http.MethodGet, "/api/status", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if id := w.Header().Get(CorrelationHeader); id == "" {
		t.Fatal("expected correlation id header")
	}
	status := decodeBody[api.DaemonStatus](t, w)
	if status.Running {
		t.Fatal("daemon was never started")
	}
	if status.Counts["pending"] != 1 || !status.Database.Exists || status.Database.TotalRequests != 1 {
		t.Fatalf("unexpected status %#v", status)
	}
}
