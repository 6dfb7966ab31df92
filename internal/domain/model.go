package domain

import (
	"strconv"
	"time"
)

type Status string

// Known GitLab job/pipeline statuses. Unknown values are carried through as-is.
const (
	StatusCreated  Status = "created"
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
	StatusSkipped  Status = "skipped"
	StatusManual   Status = "manual"
)

// IsActive reports whether a freshly tracked item with this status should be polled.
func IsActive(s Status) bool {
	switch s {
	case StatusRunning, StatusPending, StatusCreated:
		return true
	}
	return false
}

// IsTerminal reports whether s ends active polling.
func IsTerminal(s Status) bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

type Kind string

const (
	KindJob        Kind = "job"
	KindPipeline   Kind = "pipeline"
	KindRepository Kind = "repository"
)

// Reference is a classified GitLab URL.
//
// ProjectPath is percent-encoded for job and pipeline references and raw for
// repository references.
type Reference struct {
	BaseURL     string
	ProjectPath string
	Kind        Kind
	ID          int64
}

// ItemKey is the registry identity of a job or pipeline.
func ItemKey(k Kind, id int64) string {
	return string(k) + "-" + strconv.FormatInt(id, 10)
}

type User struct {
	ID        int64  `json:"id,omitempty"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type CurrentUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type PipelineRef struct {
	ID     int64  `json:"id"`
	Ref    string `json:"ref"`
	Status Status `json:"status"`
}

type JobSummary struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Status       Status     `json:"status"`
	Stage        string     `json:"stage"`
	Duration     float64    `json:"duration,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	WebURL       string     `json:"web_url"`
	AllowFailure bool       `json:"allow_failure"`
}

// StageGroup is one entry of a pipeline's stage → jobs mapping.
type StageGroup struct {
	Name string       `json:"name"`
	Jobs []JobSummary `json:"jobs"`
}

// StatusSnapshot is the normalized state of a job or pipeline at one poll.
type StatusSnapshot struct {
	ID         int64        `json:"id"`
	Kind       Kind         `json:"kind"`
	Name       string       `json:"name,omitempty"`
	Status     Status       `json:"status"`
	Stage      string       `json:"stage,omitempty"`
	Ref        string       `json:"ref"`
	Duration   float64      `json:"duration,omitempty"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	WebURL     string       `json:"web_url"`
	Pipeline   *PipelineRef `json:"pipeline,omitempty"`
	User       *User        `json:"user,omitempty"`

	// pipeline only
	SHA       string       `json:"sha,omitempty"`
	Source    string       `json:"source,omitempty"`
	Coverage  string       `json:"coverage,omitempty"`
	CreatedAt *time.Time   `json:"created_at,omitempty"`
	UpdatedAt *time.Time   `json:"updated_at,omitempty"`
	Stages    []StageGroup `json:"stages,omitempty"`
	Jobs      []JobSummary `json:"jobs,omitempty"`
}

// Key returns the registry key for the snapshot.
func (s StatusSnapshot) Key() string { return ItemKey(s.Kind, s.ID) }

// StageJobs returns the jobs of the named stage, in the order the API returned them.
func (s StatusSnapshot) StageJobs(name string) []JobSummary {
	for _, g := range s.Stages {
		if g.Name == name {
			return g.Jobs
		}
	}
	return nil
}

// GroupByStage partitions jobs by stage name. Stages appear in order of first
// occurrence and jobs keep their input order within a stage.
func GroupByStage(jobs []JobSummary) []StageGroup {
	idx := make(map[string]int)
	var out []StageGroup
	for _, j := range jobs {
		i, ok := idx[j.Stage]
		if !ok {
			i = len(out)
			idx[j.Stage] = i
			out = append(out, StageGroup{Name: j.Stage})
		}
		out[i].Jobs = append(out[i].Jobs, j)
	}
	return out
}

type ItemState string

const (
	StateFresh           ItemState = "fresh"
	StatePolling         ItemState = "polling"
	StateTerminal        ItemState = "terminal"
	StatePendingDeletion ItemState = "pending_deletion"
	StateRemoved         ItemState = "removed"
)

// TrackedItem is a read-only view of a registry entry.
type TrackedItem struct {
	Key             string         `json:"key"`
	SourceURL       string         `json:"source_url"`
	Kind            Kind           `json:"kind"`
	Snapshot        StatusSnapshot `json:"snapshot"`
	AutoDiscovered  bool           `json:"auto_discovered"`
	State           ItemState      `json:"state"`
	Refreshing      bool           `json:"refreshing"`
	DeletionPending bool           `json:"deletion_pending"`
	AddedAt         time.Time      `json:"added_at"`
}

type WatchedRepo struct {
	SourceURL    string `json:"url"`
	BaseURL      string `json:"base_url"`
	ProjectPath  string `json:"project_path"`
	PipelinesURL string `json:"pipelines_url"`
	Enabled      bool   `json:"enabled"`
}

// SameProject reports whether both repos address the same (host, project).
func (r WatchedRepo) SameProject(o WatchedRepo) bool {
	return r.BaseURL == o.BaseURL && r.ProjectPath == o.ProjectPath
}

const DefaultPollingInterval = 30

type AutoTrackConfig struct {
	Enabled         bool          `json:"enabled"`
	Repos           []WatchedRepo `json:"repos"`
	PollingInterval int           `json:"polling_interval"`
}

// Interval returns the polling cadence, falling back to the default for
// non-positive values.
func (c AutoTrackConfig) Interval() time.Duration {
	if c.PollingInterval <= 0 {
		return DefaultPollingInterval * time.Second
	}
	return time.Duration(c.PollingInterval) * time.Second
}

// Clone returns a copy that does not share the repo slice.
func (c AutoTrackConfig) Clone() AutoTrackConfig {
	out := c
	out.Repos = append([]WatchedRepo(nil), c.Repos...)
	return out
}

// StatusReport is what gets published to the status cache.
type StatusReport struct {
	Items     []TrackedItem
	Retrieved int64
}
