package application

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/davarch/ci-tracker/internal/domain"
	"go.uber.org/zap"
)

var (
	ErrDuplicateRepo = errors.New("repo is already in the watch list")
	ErrRepoIndex     = errors.New("no repo at that index")

	errNoUser = errors.New("current user unavailable")
)

var discoveryScope = []domain.Status{domain.StatusRunning, domain.StatusPending}

// Scheduler polls the watched repositories for running or pending jobs of the
// current user and hands new ones to the Registry.
type Scheduler struct {
	log       *zap.Logger
	gl        domain.Gateway
	reg       *Registry
	note      domain.Notifier
	clock     domain.Clock
	store     domain.AutoTrackStore
	pauseFile string

	ctx    context.Context
	cancel context.CancelFunc

	// editMu serialises read-modify-save edits of the watch settings.
	editMu sync.Mutex

	mu       sync.Mutex
	cfg      domain.AutoTrackConfig
	seen     map[int64]struct{}
	user     *domain.CurrentUser
	running  bool
	inFlight bool
	tick     domain.Timer
	tickGen  uint64
}

func NewScheduler(l *zap.Logger, gl domain.Gateway, reg *Registry, note domain.Notifier, clock domain.Clock, store domain.AutoTrackStore, pauseFile string) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		log: l, gl: gl, reg: reg, note: note, clock: clock, store: store, pauseFile: pauseFile,
		ctx: ctx, cancel: cancel,
		seen: make(map[int64]struct{}),
	}
}

// Configure applies new settings: starting, stopping or re-arming the tick
// as needed. Applying identical settings is a no-op.
func (s *Scheduler) Configure(cfg domain.AutoTrackConfig) {
	cfg = cfg.Clone()
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = domain.DefaultPollingInterval
	}

	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	switch {
	case cfg.Enabled && !s.running:
		s.startLocked()
	case !cfg.Enabled && s.running:
		s.stopLocked()
	case cfg.Enabled && prev.PollingInterval != cfg.PollingInterval && !s.inFlight:
		s.stopLocked()
		s.startLocked()
	}
	running := s.running
	s.mu.Unlock()

	s.log.Info("auto-track configured",
		zap.Bool("enabled", cfg.Enabled),
		zap.Bool("running", running),
		zap.Int("interval_s", cfg.PollingInterval),
		zap.Int("repos", len(cfg.Repos)),
	)
}

func (s *Scheduler) Config() domain.AutoTrackConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Clone()
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Seen reports whether auto-discovery has ever surfaced the job.
func (s *Scheduler) Seen(jobID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[jobID]
	return ok
}

func (s *Scheduler) SetEnabled(enabled bool) error {
	_, err := s.edit(func(cfg *domain.AutoTrackConfig) error {
		cfg.Enabled = enabled
		return nil
	})
	return err
}

func (s *Scheduler) SetInterval(seconds int) error {
	if seconds <= 0 {
		return fmt.Errorf("polling interval must be positive, got %d", seconds)
	}
	_, err := s.edit(func(cfg *domain.AutoTrackConfig) error {
		cfg.PollingInterval = seconds
		return nil
	})
	return err
}

// AddRepo appends a repository to the watch list and, while auto-tracking
// runs, polls it right away.
func (s *Scheduler) AddRepo(ctx context.Context, rawURL string) (domain.WatchedRepo, error) {
	repo, err := domain.ClassifyRepo(rawURL)
	if err != nil {
		return domain.WatchedRepo{}, err
	}

	cfg, err := s.edit(func(cfg *domain.AutoTrackConfig) error {
		for _, r := range cfg.Repos {
			if r.SameProject(repo) {
				return ErrDuplicateRepo
			}
		}
		cfg.Repos = append(cfg.Repos, repo)
		return nil
	})
	if err != nil {
		return domain.WatchedRepo{}, err
	}

	if cfg.Enabled {
		if err := s.pollRepo(ctx, repo); err != nil {
			s.log.Warn("initial repo poll failed", zap.String("project", repo.ProjectPath), zap.Error(err))
		}
	}
	return repo, nil
}

func (s *Scheduler) RemoveRepo(index int) error {
	_, err := s.edit(func(cfg *domain.AutoTrackConfig) error {
		if index < 0 || index >= len(cfg.Repos) {
			return ErrRepoIndex
		}
		cfg.Repos = append(cfg.Repos[:index], cfg.Repos[index+1:]...)
		return nil
	})
	return err
}

func (s *Scheduler) SetRepoEnabled(index int, enabled bool) error {
	_, err := s.edit(func(cfg *domain.AutoTrackConfig) error {
		if index < 0 || index >= len(cfg.Repos) {
			return ErrRepoIndex
		}
		cfg.Repos[index].Enabled = enabled
		return nil
	})
	return err
}

// Close stops the tick and aborts in-flight polls.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
	s.cancel()
}

// edit applies fn to the current settings, persists the result and applies
// it. Edits run one at a time; the tick only waits on s.mu, never on the store.
func (s *Scheduler) edit(fn func(*domain.AutoTrackConfig) error) (domain.AutoTrackConfig, error) {
	s.editMu.Lock()
	defer s.editMu.Unlock()

	cfg := s.Config()
	if err := fn(&cfg); err != nil {
		return domain.AutoTrackConfig{}, err
	}
	if s.store != nil {
		if err := s.store.SaveAutoTrack(cfg); err != nil {
			return domain.AutoTrackConfig{}, fmt.Errorf("save auto-track config: %w", err)
		}
	}
	s.Configure(cfg)
	return cfg, nil
}

// startLocked polls right away unless a pass is still running; that pass
// re-arms the tick when it ends.
func (s *Scheduler) startLocked() {
	s.running = true
	if !s.inFlight {
		s.armLocked(0)
	}
}

func (s *Scheduler) stopLocked() {
	s.running = false
	s.tickGen++
	stopTimer(&s.tick)
}

func (s *Scheduler) armLocked(delay time.Duration) {
	s.tickGen++
	gen := s.tickGen
	s.tick = s.clock.AfterFunc(delay, func() { s.onTick(gen) })
}

func (s *Scheduler) onTick(gen uint64) {
	s.mu.Lock()
	if !s.running || s.tickGen != gen {
		s.mu.Unlock()
		return
	}
	s.tick = nil
	s.inFlight = true
	s.mu.Unlock()

	if s.isPaused() {
		s.log.Debug("paused: skipping repo poll")
	} else {
		s.PollAll(s.ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if s.running && s.tick == nil {
		s.armLocked(s.cfg.Interval())
	}
}

func (s *Scheduler) isPaused() bool {
	if s.pauseFile == "" {
		return false
	}
	_, err := os.Stat(s.pauseFile)
	return err == nil
}

// PollAll visits the enabled repositories in list order. A repo failure is
// logged and skipped; a missing user identity ends the pass.
func (s *Scheduler) PollAll(ctx context.Context) {
	s.mu.Lock()
	repos := make([]domain.WatchedRepo, 0, len(s.cfg.Repos))
	for _, r := range s.cfg.Repos {
		if r.Enabled {
			repos = append(repos, r)
		}
	}
	s.mu.Unlock()

	for _, repo := range repos {
		if err := s.pollRepo(ctx, repo); err != nil {
			if errors.Is(err, errNoUser) {
				s.log.Warn("auto-track inert", zap.String("base_url", repo.BaseURL), zap.Error(err))
				return
			}
			s.log.Warn("poll repo failed",
				zap.String("project", repo.ProjectPath),
				zap.String("base_url", repo.BaseURL),
				zap.Error(err),
			)
		}
	}
}

func (s *Scheduler) pollRepo(ctx context.Context, repo domain.WatchedRepo) error {
	user, err := s.currentUser(ctx, repo.BaseURL)
	if err != nil {
		return err
	}

	jobs, err := s.gl.FetchProjectJobs(ctx, repo.BaseURL, repo.ProjectPath, discoveryScope)
	if err != nil {
		return err
	}

	found := 0
	for _, job := range jobs {
		if job.User == nil || job.User.Username != user.Username {
			continue
		}
		job.Kind = domain.KindJob
		key := job.Key()

		s.mu.Lock()
		_, seen := s.seen[job.ID]
		if seen || s.reg.Has(key) {
			s.mu.Unlock()
			continue
		}
		s.seen[job.ID] = struct{}{}
		s.mu.Unlock()

		jobURL := job.WebURL
		if jobURL == "" {
			jobURL = domain.JobURL(repo, job.ID)
		}
		ref := domain.Reference{
			BaseURL:     repo.BaseURL,
			ProjectPath: url.PathEscape(repo.ProjectPath),
			Kind:        domain.KindJob,
			ID:          job.ID,
		}
		if _, added := s.reg.Upsert(jobURL, ref, job, true); !added {
			continue
		}
		found++

		title, body := discoveryMessage(job)
		if err := s.note.Notify(ctx, title, body, jobURL); err != nil {
			s.log.Debug("notify failed", zap.String("key", key), zap.Error(err))
		}
	}

	s.log.Debug("polled repo",
		zap.String("project", repo.ProjectPath),
		zap.Int("jobs", len(jobs)),
		zap.Int("new", found),
	)
	return nil
}

func (s *Scheduler) currentUser(ctx context.Context, baseURL string) (domain.CurrentUser, error) {
	s.mu.Lock()
	u := s.user
	s.mu.Unlock()
	if u != nil {
		return *u, nil
	}

	cu, err := s.gl.FetchCurrentUser(ctx, baseURL)
	if err != nil {
		return domain.CurrentUser{}, fmt.Errorf("%w: %v", errNoUser, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		s.user = &cu
		s.log.Info("resolved current user", zap.String("username", cu.Username))
	}
	return *s.user, nil
}
