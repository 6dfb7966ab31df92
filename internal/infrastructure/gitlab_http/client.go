package gitlab_http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/davarch/ci-tracker/internal/domain"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ErrNoToken is returned by every call while no token is configured.
var ErrNoToken = errors.New("GitLab token not configured")

const projectJobsPageSize = 100

type Options struct {
	Timeout time.Duration
	// Retries is the number of extra attempts after a transient failure.
	// Zero means one attempt per call.
	Retries int
	// RateLimit caps outgoing requests per second; zero disables the limiter.
	RateLimit float64
	Burst     int
}

// Client talks to any GitLab host; the base URL comes from each reference.
type Client struct {
	hc      *http.Client
	retries int
	limiter *rate.Limiter

	mu    sync.RWMutex
	token string
}

func New(token string, opt Options) *Client {
	tr := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
	}

	c := &Client{
		hc:      &http.Client{Transport: tr, Timeout: opt.Timeout},
		retries: opt.Retries,
		token:   token,
	}
	if opt.RateLimit > 0 {
		burst := opt.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opt.RateLimit), burst)
	}
	return c
}

// SetToken swaps the token used for subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type userDTO struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type pipelineRefDTO struct {
	ID     int64  `json:"id"`
	Ref    string `json:"ref"`
	Status string `json:"status"`
}

type jobDTO struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Status       string          `json:"status"`
	Stage        string          `json:"stage"`
	Ref          string          `json:"ref"`
	Duration     *float64        `json:"duration"`
	StartedAt    *time.Time      `json:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at"`
	WebURL       string          `json:"web_url"`
	AllowFailure bool            `json:"allow_failure"`
	Pipeline     *pipelineRefDTO `json:"pipeline"`
	User         *userDTO        `json:"user"`
}

type pipelineDTO struct {
	ID         int64      `json:"id"`
	Status     string     `json:"status"`
	Ref        string     `json:"ref"`
	SHA        string     `json:"sha"`
	WebURL     string     `json:"web_url"`
	Source     string     `json:"source"`
	Coverage   *string    `json:"coverage"`
	Duration   *float64   `json:"duration"`
	CreatedAt  *time.Time `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	User       *userDTO   `json:"user"`
}

func (c *Client) FetchJob(ctx context.Context, ref domain.Reference) (domain.StatusSnapshot, error) {
	var j jobDTO
	u := projectURL(ref.BaseURL, ref.ProjectPath) + "/jobs/" + strconv.FormatInt(ref.ID, 10)
	if err := c.getJSON(ctx, "fetch job", u, &j); err != nil {
		return domain.StatusSnapshot{}, err
	}
	return jobSnapshot(j), nil
}

// FetchPipeline loads the pipeline and its jobs concurrently.
func (c *Client) FetchPipeline(ctx context.Context, ref domain.Reference) (domain.StatusSnapshot, error) {
	var (
		p    pipelineDTO
		jobs []jobDTO
	)
	base := projectURL(ref.BaseURL, ref.ProjectPath) + "/pipelines/" + strconv.FormatInt(ref.ID, 10)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.getJSON(gctx, "fetch pipeline", base, &p) })
	g.Go(func() error { return c.getJSON(gctx, "fetch pipeline jobs", base+"/jobs", &jobs) })
	if err := g.Wait(); err != nil {
		return domain.StatusSnapshot{}, err
	}

	out := domain.StatusSnapshot{
		ID:         p.ID,
		Kind:       domain.KindPipeline,
		Status:     domain.Status(p.Status),
		Ref:        p.Ref,
		SHA:        p.SHA,
		WebURL:     p.WebURL,
		Source:     p.Source,
		Duration:   deref(p.Duration),
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
		StartedAt:  p.StartedAt,
		FinishedAt: p.FinishedAt,
		User:       mapUser(p.User),
	}
	if p.Coverage != nil {
		out.Coverage = *p.Coverage
	}

	out.Jobs = make([]domain.JobSummary, 0, len(jobs))
	for _, j := range jobs {
		out.Jobs = append(out.Jobs, domain.JobSummary{
			ID:           j.ID,
			Name:         j.Name,
			Status:       domain.Status(j.Status),
			Stage:        j.Stage,
			Duration:     deref(j.Duration),
			StartedAt:    j.StartedAt,
			FinishedAt:   j.FinishedAt,
			WebURL:       j.WebURL,
			AllowFailure: j.AllowFailure,
		})
	}
	out.Stages = domain.GroupByStage(out.Jobs)

	return out, nil
}

func (c *Client) FetchCurrentUser(ctx context.Context, baseURL string) (domain.CurrentUser, error) {
	var u userDTO
	if err := c.getJSON(ctx, "fetch current user", trimSlash(baseURL)+"/api/v4/user", &u); err != nil {
		return domain.CurrentUser{}, err
	}
	return domain.CurrentUser{
		ID:        u.ID,
		Username:  u.Username,
		Name:      u.Name,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
	}, nil
}

// FetchProjectJobs lists one page of jobs filtered by scope. projectPath is
// the unencoded "namespace/name".
func (c *Client) FetchProjectJobs(ctx context.Context, baseURL, projectPath string, scope []domain.Status) ([]domain.StatusSnapshot, error) {
	q := make([]string, 0, len(scope)+1)
	for _, s := range scope {
		q = append(q, "scope[]="+url.QueryEscape(string(s)))
	}
	q = append(q, "per_page="+strconv.Itoa(projectJobsPageSize))

	u := projectURL(baseURL, url.PathEscape(projectPath)) + "/jobs?" + strings.Join(q, "&")

	var list []jobDTO
	if err := c.getJSON(ctx, "fetch project jobs", u, &list); err != nil {
		return nil, err
	}

	out := make([]domain.StatusSnapshot, 0, len(list))
	for _, j := range list {
		out = append(out, jobSnapshot(j))
	}
	return out, nil
}

func (c *Client) FetchJobTrace(ctx context.Context, ref domain.Reference) (string, error) {
	u := projectURL(ref.BaseURL, ref.ProjectPath) + "/jobs/" + strconv.FormatInt(ref.ID, 10) + "/trace"
	var out string
	err := c.do(ctx, "fetch job trace", u, func(body io.Reader) error {
		b, err := io.ReadAll(body)
		if err != nil {
			return err
		}
		out = string(b)
		return nil
	})
	return out, err
}

func (c *Client) getJSON(ctx context.Context, op, u string, v any) error {
	return c.do(ctx, op, u, func(body io.Reader) error {
		return json.NewDecoder(body).Decode(v)
	})
}

// do issues a GET and hands a 2xx body to read. Client errors are permanent;
// 429, 5xx and transport failures are retried up to c.retries times.
func (c *Client) do(ctx context.Context, op, u string, read func(io.Reader) error) error {
	token := c.currentToken()
	if token == "" {
		return &domain.GatewayError{Op: op, Message: ErrNoToken.Error()}
	}

	attempt := func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("PRIVATE-TOKEN", token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode == http.StatusTooManyRequests {
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if sec, _ := strconv.Atoi(ra); sec > 0 && c.retries > 0 {
					select {
					case <-time.After(time.Duration(sec) * time.Second):
					case <-ctx.Done():
						return backoff.Permanent(ctx.Err())
					}
				}
			}
			return apiError(op, resp)
		}

		if resp.StatusCode >= 500 {
			return apiError(op, resp)
		}

		if resp.StatusCode >= 300 {
			return backoff.Permanent(apiError(op, resp))
		}

		if err := read(resp.Body); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 300 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 10 * time.Second

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(max(c.retries, 0))), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		var ge *domain.GatewayError
		if errors.As(err, &ge) {
			return ge
		}
		return &domain.GatewayError{Op: op, Message: err.Error()}
	}
	return nil
}

// apiError builds a GatewayError from GitLab's {"message": ...} or
// {"error": ...} body, falling back to the HTTP status text.
func apiError(op string, resp *http.Response) *domain.GatewayError {
	e := &domain.GatewayError{Op: op, StatusCode: resp.StatusCode, Message: resp.Status}

	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Message json.RawMessage `json:"message"`
		Error   string          `json:"error"`
	}
	if json.Unmarshal(b, &body) != nil {
		return e
	}

	if len(body.Message) > 0 {
		var s string
		if json.Unmarshal(body.Message, &s) == nil {
			e.Message = s
		} else {
			e.Message = string(body.Message)
		}
	} else if body.Error != "" {
		e.Message = body.Error
	}
	return e
}

func jobSnapshot(j jobDTO) domain.StatusSnapshot {
	s := domain.StatusSnapshot{
		ID:         j.ID,
		Kind:       domain.KindJob,
		Name:       j.Name,
		Status:     domain.Status(j.Status),
		Stage:      j.Stage,
		Ref:        j.Ref,
		Duration:   deref(j.Duration),
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
		WebURL:     j.WebURL,
		User:       mapUser(j.User),
	}
	if j.Pipeline != nil {
		s.Pipeline = &domain.PipelineRef{
			ID:     j.Pipeline.ID,
			Ref:    j.Pipeline.Ref,
			Status: domain.Status(j.Pipeline.Status),
		}
	}
	return s
}

func mapUser(u *userDTO) *domain.User {
	if u == nil {
		return nil
	}
	return &domain.User{ID: u.ID, Name: u.Name, Username: u.Username, AvatarURL: u.AvatarURL}
}

func projectURL(baseURL, encodedPath string) string {
	return trimSlash(baseURL) + "/api/v4/projects/" + encodedPath
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
