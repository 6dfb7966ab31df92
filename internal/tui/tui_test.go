package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/davarch/ci-tracker/internal/domain"
)

type fakeSource struct {
	items     []domain.TrackedItem
	refreshed []string
	err       error
}

func (f *fakeSource) Items() []domain.TrackedItem { return append([]domain.TrackedItem(nil), f.items...) }

func (f *fakeSource) Refresh(_ context.Context, key string) error {
	f.refreshed = append(f.refreshed, key)
	return f.err
}

func (f *fakeSource) Remove(key string) bool {
	for i, it := range f.items {
		if it.Key == key {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return true
		}
	}
	return false
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func sample() *fakeSource {
	return &fakeSource{items: []domain.TrackedItem{
		{Key: "job-1", Kind: domain.KindJob, Snapshot: domain.StatusSnapshot{ID: 1, Kind: domain.KindJob, Name: "unit", Ref: "main", Status: domain.StatusRunning, Stage: "test"}},
		{Key: "pipeline-2", Kind: domain.KindPipeline, AutoDiscovered: true, DeletionPending: true, Snapshot: domain.StatusSnapshot{
			ID: 2, Kind: domain.KindPipeline, Ref: "dev", Status: domain.StatusFailed,
			Stages: []domain.StageGroup{
				{Name: "build", Jobs: []domain.JobSummary{{Status: domain.StatusSuccess}, {Status: domain.StatusSuccess}}},
				{Name: "test", Jobs: []domain.JobSummary{{Status: domain.StatusFailed}}},
			},
		}},
	}}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestModel_NavigationClamps(t *testing.T) {
	m := NewModel(context.Background(), sample())

	m, _ = update(t, m, key("k"))
	if m.cursor != 0 {
		t.Errorf("cursor = %d", m.cursor)
	}
	m, _ = update(t, m, key("j"))
	m, _ = update(t, m, key("j"))
	if m.cursor != 1 {
		t.Errorf("cursor = %d", m.cursor)
	}
}

func TestModel_RefreshRunsCommand(t *testing.T) {
	src := sample()
	src.err = errors.New("gitlab 502: bad gateway")
	m := NewModel(context.Background(), src)

	m, cmd := update(t, m, key("r"))
	if cmd == nil {
		t.Fatal("no refresh command")
	}
	m, _ = update(t, m, cmd())

	if len(src.refreshed) != 1 || src.refreshed[0] != "job-1" {
		t.Errorf("refreshed = %v", src.refreshed)
	}
	if !m.failed || !strings.Contains(m.notice, "bad gateway") {
		t.Errorf("notice = %q", m.notice)
	}
}

func TestModel_RemoveDropsSelected(t *testing.T) {
	src := sample()
	m := NewModel(context.Background(), src)
	m, _ = update(t, m, key("j"))
	m, _ = update(t, m, key("d"))

	if len(m.items) != 1 || m.items[0].Key != "job-1" || m.cursor != 0 {
		t.Errorf("items=%+v cursor=%d", m.items, m.cursor)
	}
}

func TestModel_Quit(t *testing.T) {
	m := NewModel(context.Background(), sample())
	_, cmd := update(t, m, key("q"))
	if cmd == nil {
		t.Fatal("no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q does not quit")
	}
}

func TestModel_ItemsMessageReplacesList(t *testing.T) {
	m := NewModel(context.Background(), sample())
	m, _ = update(t, m, key("j"))
	m, _ = update(t, m, itemsMsg(nil))
	if len(m.items) != 0 || m.cursor != 0 {
		t.Errorf("items=%d cursor=%d", len(m.items), m.cursor)
	}
	if !strings.Contains(m.View(), "nothing tracked") {
		t.Error("empty state not shown")
	}
}

func TestView_ShowsMarkersAndStages(t *testing.T) {
	out := NewModel(context.Background(), sample()).View()

	for _, want := range []string{"job unit on main [test]", "pipeline #2 on dev", "auto", "removing soon", "build ✓✓", "test ✗", "j/k:select"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q:\n%s", want, out)
		}
	}
}
