package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/davarch/ci-tracker/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultRefreshInterval = 10 * time.Second
	DefaultDeleteAfter     = 10 * time.Minute
)

var ErrNotTracked = errors.New("item is not tracked")

type Timings struct {
	RefreshInterval time.Duration
	DeleteAfter     time.Duration
}

func (t Timings) withDefaults() Timings {
	if t.RefreshInterval <= 0 {
		t.RefreshInterval = DefaultRefreshInterval
	}
	if t.DeleteAfter <= 0 {
		t.DeleteAfter = DefaultDeleteAfter
	}
	return t
}

type trackedItem struct {
	key            string
	sourceURL      string
	ref            domain.Reference
	snapshot       domain.StatusSnapshot
	autoDiscovered bool
	addedAt        time.Time
	state          domain.ItemState

	// A timer callback only acts when its generation still matches.
	refresh     domain.Timer
	refreshGen  uint64
	refreshing  bool
	deletion    domain.Timer
	deletionGen uint64

	// Fetches are numbered when issued; a result older than the last one
	// applied is dropped.
	fetchSeq   uint64
	appliedSeq uint64
}

// Registry owns the set of tracked jobs and pipelines and drives each item's
// refresh and cleanup timers.
type Registry struct {
	log   *zap.Logger
	gl    domain.Gateway
	note  domain.Notifier
	clock domain.Clock
	tm    Timings

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	items  map[string]*trackedItem
	order  []string
	closed bool

	subMu   sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
}

func NewRegistry(l *zap.Logger, gl domain.Gateway, note domain.Notifier, clock domain.Clock, tm Timings) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		log: l, gl: gl, note: note, clock: clock, tm: tm.withDefaults(),
		ctx: ctx, cancel: cancel,
		items: make(map[string]*trackedItem),
		subs:  make(map[int]chan struct{}),
	}
}

// Track classifies rawURL, fetches it once and inserts the result. An already
// tracked item is returned untouched with added == false.
func (r *Registry) Track(ctx context.Context, rawURL string) (item domain.TrackedItem, added bool, err error) {
	ref, err := domain.Classify(rawURL)
	if err != nil {
		return domain.TrackedItem{}, false, err
	}

	snap, err := r.fetch(ctx, ref)
	if err != nil {
		return domain.TrackedItem{}, false, err
	}

	key, added := r.Upsert(rawURL, ref, snap, false)
	item, _ = r.Get(key)
	return item, added, nil
}

// Upsert inserts an item keyed by the snapshot's kind and id. Inserting an
// existing key is a no-op that leaves the snapshot and timers alone, and
// after Teardown nothing is inserted.
func (r *Registry) Upsert(sourceURL string, ref domain.Reference, snap domain.StatusSnapshot, autoDiscovered bool) (string, bool) {
	if snap.Kind == "" {
		snap.Kind = ref.Kind
	}
	key := snap.Key()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", false
	}
	if _, ok := r.items[key]; ok {
		r.mu.Unlock()
		return key, false
	}

	it := &trackedItem{
		key:            key,
		sourceURL:      sourceURL,
		ref:            ref,
		snapshot:       snap,
		autoDiscovered: autoDiscovered,
		addedAt:        r.clock.Now(),
		state:          domain.StateFresh,
	}
	r.items[key] = it
	r.order = append(r.order, key)

	if domain.IsActive(snap.Status) {
		it.state = domain.StatePolling
		r.armRefresh(it)
	} else {
		it.state = domain.StateTerminal
	}
	state := it.state
	r.mu.Unlock()

	r.log.Info("tracking",
		zap.String("key", key),
		zap.String("status", string(snap.Status)),
		zap.String("state", string(state)),
		zap.Bool("auto", autoDiscovered),
	)
	r.changed()
	return key, true
}

// Refresh refetches one item. On failure the previous snapshot and timers
// are kept.
func (r *Registry) Refresh(ctx context.Context, key string) error {
	r.mu.Lock()
	it := r.items[key]
	r.mu.Unlock()
	if it == nil {
		return ErrNotTracked
	}
	return r.refresh(ctx, it)
}

// Remove cancels the item's timers and drops it. Unknown keys are ignored.
func (r *Registry) Remove(key string) bool {
	r.mu.Lock()
	it := r.items[key]
	if it != nil {
		r.removeLocked(it)
	}
	r.mu.Unlock()

	if it == nil {
		return false
	}
	r.log.Info("removed", zap.String("key", key))
	r.changed()
	return true
}

// Teardown removes every item, aborts in-flight fetches and closes the
// registry to new items.
func (r *Registry) Teardown() {
	r.cancel()

	r.mu.Lock()
	r.closed = true
	for _, key := range append([]string(nil), r.order...) {
		r.removeLocked(r.items[key])
	}
	r.mu.Unlock()

	r.changed()

	r.subMu.Lock()
	for id, ch := range r.subs {
		close(ch)
		delete(r.subs, id)
	}
	r.subMu.Unlock()
}

func (r *Registry) Has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.items[key]
	return ok
}

func (r *Registry) Get(key string) (domain.TrackedItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[key]
	if !ok {
		return domain.TrackedItem{}, false
	}
	return it.view(), true
}

// Items returns all entries in insertion order.
func (r *Registry) Items() []domain.TrackedItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.TrackedItem, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.items[key].view())
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Subscribe returns a channel that receives a value after registry changes.
// Bursts are coalesced; the channel is closed on Teardown.
func (r *Registry) Subscribe() (<-chan struct{}, func()) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	id := r.nextSub
	r.nextSub++
	ch := make(chan struct{}, 1)
	r.subs[id] = ch

	return ch, func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		if c, ok := r.subs[id]; ok {
			close(c)
			delete(r.subs, id)
		}
	}
}

func (r *Registry) changed() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (r *Registry) fetch(ctx context.Context, ref domain.Reference) (domain.StatusSnapshot, error) {
	switch ref.Kind {
	case domain.KindPipeline:
		return r.gl.FetchPipeline(ctx, ref)
	case domain.KindJob:
		return r.gl.FetchJob(ctx, ref)
	}
	return domain.StatusSnapshot{}, fmt.Errorf("cannot track %s references", ref.Kind)
}

func (r *Registry) refresh(ctx context.Context, it *trackedItem) error {
	r.mu.Lock()
	it.fetchSeq++
	seq := it.fetchSeq
	r.mu.Unlock()

	snap, err := r.fetch(ctx, it.ref)
	if err != nil {
		return err
	}
	if snap.Kind == "" {
		snap.Kind = it.ref.Kind
	}

	r.mu.Lock()
	if r.items[it.key] != it {
		r.mu.Unlock()
		return nil
	}
	if seq < it.appliedSeq {
		r.mu.Unlock()
		r.log.Debug("dropped stale refresh", zap.String("key", it.key), zap.String("status", string(snap.Status)))
		return nil
	}
	it.appliedSeq = seq
	notify := r.applyLocked(it, snap)
	state := it.state
	r.mu.Unlock()

	r.log.Debug("refreshed",
		zap.String("key", it.key),
		zap.String("status", string(snap.Status)),
		zap.String("state", string(state)),
	)

	if notify {
		title, body := completionMessage(snap)
		if err := r.note.Notify(r.ctx, title, body, snap.WebURL); err != nil {
			r.log.Debug("notify failed", zap.String("key", it.key), zap.Error(err))
		}
	}
	r.changed()
	return nil
}

// applyLocked stores snap and re-evaluates the lifecycle. It reports whether
// the item just left polling for a terminal status.
func (r *Registry) applyLocked(it *trackedItem, snap domain.StatusSnapshot) bool {
	prev := it.state
	it.snapshot = snap

	switch {
	case domain.IsTerminal(snap.Status):
		stopTimer(&it.refresh)
		if it.deletion == nil {
			r.armDeletion(it)
		}
		it.state = domain.StatePendingDeletion
		return prev == domain.StatePolling

	case domain.IsActive(snap.Status) && prev != domain.StatePolling:
		stopTimer(&it.deletion)
		it.state = domain.StatePolling
		if !it.refreshing {
			r.armRefresh(it)
		}
	}
	return false
}

func (r *Registry) armRefresh(it *trackedItem) {
	if r.closed {
		return
	}
	it.refreshGen++
	gen := it.refreshGen
	it.refresh = r.clock.AfterFunc(r.tm.RefreshInterval, func() { r.onRefreshTimer(it, gen) })
}

func (r *Registry) onRefreshTimer(it *trackedItem, gen uint64) {
	r.mu.Lock()
	if r.items[it.key] != it || it.refresh == nil || it.refreshGen != gen {
		r.mu.Unlock()
		return
	}
	it.refresh = nil
	it.refreshing = true
	r.mu.Unlock()

	if err := r.refresh(r.ctx, it); err != nil {
		r.log.Warn("refresh failed", zap.String("key", it.key), zap.Error(err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	it.refreshing = false
	if r.items[it.key] == it && it.state == domain.StatePolling && it.refresh == nil {
		r.armRefresh(it)
	}
}

func (r *Registry) armDeletion(it *trackedItem) {
	if r.closed {
		return
	}
	it.deletionGen++
	gen := it.deletionGen
	it.deletion = r.clock.AfterFunc(r.tm.DeleteAfter, func() { r.onDeletionTimer(it, gen) })
}

func (r *Registry) onDeletionTimer(it *trackedItem, gen uint64) {
	r.mu.Lock()
	if r.items[it.key] != it || it.deletion == nil || it.deletionGen != gen {
		r.mu.Unlock()
		return
	}
	r.removeLocked(it)
	r.mu.Unlock()

	r.log.Info("auto-removed finished item", zap.String("key", it.key))
	r.changed()
}

func (r *Registry) removeLocked(it *trackedItem) {
	stopTimer(&it.refresh)
	stopTimer(&it.deletion)
	it.state = domain.StateRemoved
	delete(r.items, it.key)
	for i, k := range r.order {
		if k == it.key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (it *trackedItem) view() domain.TrackedItem {
	return domain.TrackedItem{
		Key:             it.key,
		SourceURL:       it.sourceURL,
		Kind:            it.snapshot.Kind,
		Snapshot:        it.snapshot,
		AutoDiscovered:  it.autoDiscovered,
		State:           it.state,
		Refreshing:      it.refresh != nil || it.refreshing,
		DeletionPending: it.deletion != nil,
		AddedAt:         it.addedAt,
	}
}

func stopTimer(t *domain.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
