package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/davarch/ci-tracker/internal/application"
	"github.com/davarch/ci-tracker/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type fixture struct {
	gl    *domain.MockGateway
	reg   *application.Registry
	sched *application.Scheduler
	store *domain.MockAutoTrackStore
	srv   *httptest.Server
	cl    *Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{gl: domain.NewMockGateway(), store: &domain.MockAutoTrackStore{}}
	clock := domain.NewFakeClock()
	note := &domain.MockNotifier{}
	f.reg = application.NewRegistry(zap.NewNop(), f.gl, note, clock, application.Timings{})
	f.sched = application.NewScheduler(zap.NewNop(), f.gl, f.reg, note, clock, f.store, "")
	t.Cleanup(f.reg.Teardown)
	t.Cleanup(f.sched.Close)

	f.srv = httptest.NewServer(NewServer(zap.NewNop(), f.reg, f.sched).Handler())
	t.Cleanup(f.srv.Close)
	f.cl = NewClient(f.srv.URL)
	return f
}

func statusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestItems_TrackListRefreshRemove(t *testing.T) {
	f := newFixture(t)
	f.gl.SetJob(domain.StatusSnapshot{ID: 7, Name: "unit", Ref: "main", Status: domain.StatusRunning})
	ctx := context.Background()

	item, added, err := f.cl.Track(ctx, "https://g.example.com/a/b/-/jobs/7")
	if err != nil || !added || item.Key != "job-7" {
		t.Fatalf("track: item=%+v added=%v err=%v", item, added, err)
	}
	if _, added, err := f.cl.Track(ctx, "https://g.example.com/a/b/-/jobs/7"); err != nil || added {
		t.Errorf("re-track: added=%v err=%v", added, err)
	}

	items, err := f.cl.Items(ctx)
	if err != nil || len(items) != 1 || items[0].State != domain.StatePolling {
		t.Fatalf("items=%+v err=%v", items, err)
	}

	f.gl.SetJob(domain.StatusSnapshot{ID: 7, Name: "unit", Ref: "main", Status: domain.StatusSuccess})
	item, err = f.cl.Refresh(ctx, "job-7")
	if err != nil || item.Snapshot.Status != domain.StatusSuccess || !item.DeletionPending {
		t.Errorf("refresh: item=%+v err=%v", item, err)
	}

	if err := f.cl.Remove(ctx, "job-7"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := f.cl.Remove(ctx, "job-7"); statusOf(err) != http.StatusNotFound {
		t.Errorf("second remove: %v", err)
	}
	if _, err := f.cl.Refresh(ctx, "job-7"); statusOf(err) != http.StatusNotFound {
		t.Errorf("refresh removed: %v", err)
	}
}

func TestItems_ErrorMapping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, _, err := f.cl.Track(ctx, "https://g.example.com/a/b/-/issues/1"); statusOf(err) != http.StatusBadRequest {
		t.Errorf("classification: %v", err)
	}
	if _, _, err := f.cl.Track(ctx, "https://g.example.com/a/b/-/jobs/404"); statusOf(err) != http.StatusBadGateway {
		t.Errorf("gateway: %v", err)
	}
	if resp := do(t, http.MethodPost, f.srv.URL+"/items", "not json"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad body: %d", resp.StatusCode)
	}
}

func TestAutoTrack_Endpoints(t *testing.T) {
	f := newFixture(t)
	base := f.srv.URL

	if resp := do(t, http.MethodPut, base+"/autotrack", `{"enabled": true, "polling_interval": 15}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("put autotrack: %d", resp.StatusCode)
	}
	cfg := f.sched.Config()
	if !cfg.Enabled || cfg.PollingInterval != 15 || !f.sched.Running() {
		t.Errorf("config = %+v", cfg)
	}

	if resp := do(t, http.MethodPut, base+"/autotrack", `{"polling_interval": 0}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("zero interval: %d", resp.StatusCode)
	}

	if resp := do(t, http.MethodPost, base+"/autotrack/repos", `{"url": "https://g.example.com/a/b"}`); resp.StatusCode != http.StatusCreated {
		t.Fatalf("add repo: %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, base+"/autotrack/repos", `{"url": "https://g.example.com/a/b/-/pipelines"}`); resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate repo: %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, base+"/autotrack/repos", `{"url": "ftp://nope"}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid repo: %d", resp.StatusCode)
	}

	if resp := do(t, http.MethodPut, base+"/autotrack/repos/0", `{"enabled": false}`); resp.StatusCode != http.StatusOK {
		t.Errorf("disable repo: %d", resp.StatusCode)
	}
	if f.sched.Config().Repos[0].Enabled {
		t.Error("repo still enabled")
	}
	if resp := do(t, http.MethodPut, base+"/autotrack/repos/3", `{"enabled": true}`); resp.StatusCode != http.StatusNotFound {
		t.Errorf("bad index: %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodDelete, base+"/autotrack/repos/x", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("non-numeric index: %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodDelete, base+"/autotrack/repos/0", ""); resp.StatusCode != http.StatusNoContent {
		t.Errorf("remove repo: %d", resp.StatusCode)
	}

	resp := do(t, http.MethodGet, base+"/autotrack", "")
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), `"running":true`) || !strings.Contains(buf.String(), `"polling_interval":15`) {
		t.Errorf("get autotrack = %s", buf.String())
	}
	if len(f.store.Saved) < 4 {
		t.Errorf("saves = %d", len(f.store.Saved))
	}
}

func TestStream_SendsSnapshotOnChange(t *testing.T) {
	f := newFixture(t)
	f.gl.SetJob(domain.StatusSnapshot{ID: 1, Name: "unit", Status: domain.StatusRunning})

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var snap Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("initial snapshot: %v", err)
	}
	if len(snap.Items) != 0 {
		t.Errorf("initial items = %d", len(snap.Items))
	}

	if _, _, err := f.cl.Track(context.Background(), "https://g.example.com/a/b/-/jobs/1"); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(snap.Items) != 1 || snap.Items[0].Key != "job-1" {
		t.Errorf("items = %+v", snap.Items)
	}
}
