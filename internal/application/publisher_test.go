package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/davarch/ci-tracker/internal/domain"
	"go.uber.org/zap"
)

func TestPublishOnce_WritesRegistryReport(t *testing.T) {
	f := newRegistryFixture(t)
	f.trackJob(t, 1, domain.StatusRunning)
	cache := &domain.MockCache{}

	NewPublisher(zap.NewNop(), f.reg, cache, f.clock).PublishOnce(context.Background())

	if cache.Len() != 1 {
		t.Fatalf("reports = %d", cache.Len())
	}
	r := cache.Reports[0]
	if len(r.Items) != 1 || r.Items[0].Key != "job-1" {
		t.Errorf("items = %+v", r.Items)
	}
	if r.Retrieved != f.clock.Now().Unix() {
		t.Errorf("retrieved = %d", r.Retrieved)
	}
}

func TestPublishOnce_CacheErrorIsSwallowed(t *testing.T) {
	f := newRegistryFixture(t)
	cache := &domain.MockCache{Err: errors.New("disk full")}

	NewPublisher(zap.NewNop(), f.reg, cache, f.clock).PublishOnce(context.Background())

	if cache.Len() != 0 {
		t.Errorf("reports = %d", cache.Len())
	}
}

func TestRun_PublishesOnChangeUntilTeardown(t *testing.T) {
	f := newRegistryFixture(t)
	cache := &domain.MockCache{}
	p := NewPublisher(zap.NewNop(), f.reg, cache, f.clock)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()

	waitFor(t, func() bool { return cache.Len() >= 1 })
	f.trackJob(t, 1, domain.StatusRunning)
	waitFor(t, func() bool { return len(cache.Last().Items) == 1 })

	f.reg.Teardown()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after teardown")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
