package cache_fs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/davarch/ci-tracker/internal/domain"
)

func TestCache_WriteSummarizesItems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snap.json")

	c := New(path)
	r := domain.StatusReport{
		Items: []domain.TrackedItem{
			{Key: "job-1", Kind: domain.KindJob, Snapshot: domain.StatusSnapshot{ID: 1, Kind: domain.KindJob, Name: "unit", Ref: "main", Status: domain.StatusRunning}},
			{Key: "pipeline-2", Kind: domain.KindPipeline, SourceURL: "https://g/a/-/pipelines/2", Snapshot: domain.StatusSnapshot{ID: 2, Kind: domain.KindPipeline, Ref: "dev", Status: domain.StatusFailed}},
			{Key: "job-3", Kind: domain.KindJob, AutoDiscovered: true, Snapshot: domain.StatusSnapshot{ID: 3, Kind: domain.KindJob, Status: domain.StatusSuccess}},
		},
		Retrieved: 123,
	}
	if err := c.Write(context.Background(), r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("file not created: %v", err)
	}
	var got out
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}

	if got.Running != 1 || got.Failed != 1 || got.Text != "CI ▶1 ✗1" || got.Retrieved != 123 {
		t.Errorf("summary = %+v", got)
	}
	if len(got.Items) != 3 || got.Items[1].Name != "#2" || got.Items[1].URL != "https://g/a/-/pipelines/2" || !got.Items[2].Auto {
		t.Errorf("items = %+v", got.Items)
	}
}

func TestCache_EmptyReportHasEmptyText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	if err := New(path).Write(context.Background(), domain.StatusReport{}); err != nil {
		t.Fatal(err)
	}
	b, _ := os.ReadFile(path)
	var got out
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got.Text != "" || got.Items == nil {
		t.Errorf("summary = %+v", got)
	}
}

func TestCache_EmptyPath(t *testing.T) {
	if err := New("").Write(context.Background(), domain.StatusReport{}); err == nil {
		t.Error("expected error")
	}
}
