package domain

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MockGateway struct {
	mu sync.Mutex

	Jobs        map[int64]StatusSnapshot
	Pipelines   map[int64]StatusSnapshot
	User        CurrentUser
	UserErr     error
	ProjectJobs map[string][]StatusSnapshot
	ProjectErr  map[string]error
	Err         error

	JobCalls     int
	UserCalls    int
	ProjectCalls []string
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		Jobs:        make(map[int64]StatusSnapshot),
		Pipelines:   make(map[int64]StatusSnapshot),
		ProjectJobs: make(map[string][]StatusSnapshot),
		ProjectErr:  make(map[string]error),
	}
}

func (m *MockGateway) SetJob(s StatusSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Kind = KindJob
	m.Jobs[s.ID] = s
}

func (m *MockGateway) SetPipeline(s StatusSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Kind = KindPipeline
	m.Pipelines[s.ID] = s
}

func (m *MockGateway) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

func (m *MockGateway) FetchJob(_ context.Context, ref Reference) (StatusSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.JobCalls++
	if m.Err != nil {
		return StatusSnapshot{}, m.Err
	}
	s, ok := m.Jobs[ref.ID]
	if !ok {
		return StatusSnapshot{}, &GatewayError{Op: "fetch job", StatusCode: 404, Message: "404 Not found"}
	}
	return s, nil
}

func (m *MockGateway) FetchPipeline(_ context.Context, ref Reference) (StatusSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return StatusSnapshot{}, m.Err
	}
	s, ok := m.Pipelines[ref.ID]
	if !ok {
		return StatusSnapshot{}, &GatewayError{Op: "fetch pipeline", StatusCode: 404, Message: "404 Not found"}
	}
	return s, nil
}

func (m *MockGateway) FetchCurrentUser(_ context.Context, _ string) (CurrentUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UserCalls++
	if m.UserErr != nil {
		return CurrentUser{}, m.UserErr
	}
	return m.User, nil
}

func (m *MockGateway) FetchProjectJobs(_ context.Context, _, projectPath string, _ []Status) ([]StatusSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ProjectCalls = append(m.ProjectCalls, projectPath)
	if err := m.ProjectErr[projectPath]; err != nil {
		return nil, err
	}
	return append([]StatusSnapshot(nil), m.ProjectJobs[projectPath]...), nil
}

type MockNotifier struct {
	mu       sync.Mutex
	Messages []string
	Err      error
}

func (n *MockNotifier) Notify(ctx context.Context, title, body, url string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Messages = append(n.Messages, title+"|"+body+"|"+url)
	return n.Err
}

func (n *MockNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Messages)
}

type MockCache struct {
	mu      sync.Mutex
	Reports []StatusReport
	Err     error
}

func (c *MockCache) Write(ctx context.Context, r StatusReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Reports = append(c.Reports, r)
	return nil
}

func (c *MockCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Reports)
}

func (c *MockCache) Last() StatusReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Reports) == 0 {
		return StatusReport{}
	}
	return c.Reports[len(c.Reports)-1]
}

type MockAutoTrackStore struct {
	mu    sync.Mutex
	Saved []AutoTrackConfig
	Cfg   AutoTrackConfig
	Err   error
}

func (s *MockAutoTrackStore) LoadAutoTrack() (AutoTrackConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Cfg.Clone(), s.Err
}

func (s *MockAutoTrackStore) SaveAutoTrack(c AutoTrackConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Cfg = c.Clone()
	s.Saved = append(s.Saved, c.Clone())
	return nil
}

// FakeClock fires timers synchronously from Advance, in deadline order.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *FakeClock
	at    time.Time
	seq   int
	fn    func()
	done  bool
}

func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, at: c.now.Add(d), seq: c.seq, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward by d, running every timer that comes due,
// including timers armed by callbacks along the way.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		sort.Slice(c.timers, func(i, j int) bool {
			if c.timers[i].at.Equal(c.timers[j].at) {
				return c.timers[i].seq < c.timers[j].seq
			}
			return c.timers[i].at.Before(c.timers[j].at)
		})
		if len(c.timers) == 0 || c.timers[0].at.After(target) {
			c.now = target
			c.mu.Unlock()
			return
		}
		t := c.timers[0]
		c.timers = c.timers[1:]
		t.done = true
		if t.at.After(c.now) {
			c.now = t.at
		}
		c.mu.Unlock()

		t.fn()
	}
}

// Pending returns the number of armed timers.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (t *fakeTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	for i, x := range c.timers {
		if x == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			break
		}
	}
	return true
}
