package domain

import (
	"context"
	"time"
)

// Gateway is the GitLab REST surface the tracker depends on.
type Gateway interface {
	FetchJob(ctx context.Context, ref Reference) (StatusSnapshot, error)
	FetchPipeline(ctx context.Context, ref Reference) (StatusSnapshot, error)
	FetchCurrentUser(ctx context.Context, baseURL string) (CurrentUser, error)
	// FetchProjectJobs returns at most one page of jobs; callers must not
	// treat the result as complete.
	FetchProjectJobs(ctx context.Context, baseURL, projectPath string, scope []Status) ([]StatusSnapshot, error)
}

// TraceFetcher is implemented by gateways that can download job logs.
type TraceFetcher interface {
	FetchJobTrace(ctx context.Context, ref Reference) (string, error)
}

type Notifier interface {
	Notify(ctx context.Context, title, body, url string) error
}

type StatusCache interface {
	Write(ctx context.Context, r StatusReport) error
}

// AutoTrackStore persists the auto-track settings.
type AutoTrackStore interface {
	LoadAutoTrack() (AutoTrackConfig, error)
	SaveAutoTrack(c AutoTrackConfig) error
}

type Timer interface {
	Stop() bool
}

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}
