package domain

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestItemKey_Injective(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("same kind keys collide only on equal ids", prop.ForAll(
		func(a, b int64) bool {
			return (ItemKey(KindJob, a) == ItemKey(KindJob, b)) == (a == b)
		},
		gen.Int64(),
		gen.Int64(),
	))

	properties.Property("job and pipeline keys never collide", prop.ForAll(
		func(a, b int64) bool {
			return ItemKey(KindJob, a) != ItemKey(KindPipeline, b)
		},
		gen.Int64(),
		gen.Int64(),
	))

	properties.TestingRun(t)

	if got := ItemKey(KindPipeline, 42); got != "pipeline-42" {
		t.Errorf("ItemKey = %q", got)
	}
}

func TestGroupByStage_PreservesOrder(t *testing.T) {
	jobs := []JobSummary{
		{ID: 1, Stage: "build", Name: "compile"},
		{ID: 2, Stage: "test", Name: "unit"},
		{ID: 3, Stage: "build", Name: "lint"},
	}

	groups := GroupByStage(jobs)
	if len(groups) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(groups))
	}
	if groups[0].Name != "build" || groups[1].Name != "test" {
		t.Errorf("stage order = %s, %s", groups[0].Name, groups[1].Name)
	}

	s := StatusSnapshot{Stages: groups}
	build := s.StageJobs("build")
	if len(build) != 2 || build[0].Name != "compile" || build[1].Name != "lint" {
		t.Errorf("build stage = %+v", build)
	}
	test := s.StageJobs("test")
	if len(test) != 1 || test[0].Name != "unit" {
		t.Errorf("test stage = %+v", test)
	}
	if s.StageJobs("deploy") != nil {
		t.Error("unexpected jobs for missing stage")
	}
}

func TestStatusClasses(t *testing.T) {
	for _, s := range []Status{StatusRunning, StatusPending, StatusCreated} {
		if !IsActive(s) || IsTerminal(s) {
			t.Errorf("%s should be active", s)
		}
	}
	for _, s := range []Status{StatusSuccess, StatusFailed, StatusCanceled} {
		if IsActive(s) || !IsTerminal(s) {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusManual, StatusSkipped, Status("waiting_for_resource")} {
		if IsActive(s) || IsTerminal(s) {
			t.Errorf("%s should be neither active nor terminal", s)
		}
	}
}

func TestAutoTrackConfig_Interval(t *testing.T) {
	if got := (AutoTrackConfig{}).Interval(); got != 30*time.Second {
		t.Errorf("default interval = %s", got)
	}
	if got := (AutoTrackConfig{PollingInterval: 10}).Interval(); got != 10*time.Second {
		t.Errorf("interval = %s", got)
	}
}

func TestFakeClock_StopPreventsFiring(t *testing.T) {
	c := NewFakeClock()
	fired := 0
	t1 := c.AfterFunc(time.Second, func() { fired++ })
	c.AfterFunc(2*time.Second, func() { fired += 10 })

	if !t1.Stop() {
		t.Fatal("Stop on pending timer returned false")
	}
	c.Advance(3 * time.Second)

	if fired != 10 {
		t.Errorf("fired = %d, want 10", fired)
	}
	if t1.Stop() {
		t.Error("second Stop returned true")
	}
	if c.Pending() != 0 {
		t.Errorf("pending = %d", c.Pending())
	}
}
