package domain

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	pipelinePathRe = regexp.MustCompile(`^(.+)/-/pipelines/(\d+)`)
	jobPathRe      = regexp.MustCompile(`^(.+)/-/jobs/(\d+)`)
	repoSuffixRe   = regexp.MustCompile(`/-/.*$`)
)

// Classify resolves a job or pipeline URL. Pipelines are tried first.
func Classify(raw string) (Reference, error) {
	u, err := parseHTTPURL(raw)
	if err != nil {
		return Reference{}, err
	}
	if ref, ok := matchPath(u, pipelinePathRe, KindPipeline); ok {
		return ref, nil
	}
	if ref, ok := matchPath(u, jobPathRe, KindJob); ok {
		return ref, nil
	}
	return Reference{}, &ClassificationError{Input: raw, Reason: "not a job or pipeline URL"}
}

func ClassifyJob(raw string) (Reference, error) {
	return classifyAs(raw, jobPathRe, KindJob)
}

func ClassifyPipeline(raw string) (Reference, error) {
	return classifyAs(raw, pipelinePathRe, KindPipeline)
}

// ClassifyRepo resolves a project URL for the watch list. Anything after
// "/-/" and trailing slashes are dropped; the project path stays unencoded.
func ClassifyRepo(raw string) (WatchedRepo, error) {
	u, err := parseHTTPURL(raw)
	if err != nil {
		return WatchedRepo{}, err
	}
	p := repoSuffixRe.ReplaceAllString(u.Path, "")
	p = strings.TrimRight(p, "/")
	if p == "" {
		return WatchedRepo{}, &ClassificationError{Input: raw, Reason: "no project path"}
	}
	base := baseURL(u)
	project := strings.TrimPrefix(p, "/")
	return WatchedRepo{
		SourceURL:    raw,
		BaseURL:      base,
		ProjectPath:  project,
		PipelinesURL: base + "/" + project + "/-/pipelines",
		Enabled:      true,
	}, nil
}

// JobURL builds the web address of a job in a watched project.
func JobURL(repo WatchedRepo, id int64) string {
	return repo.BaseURL + "/" + repo.ProjectPath + "/-/jobs/" + strconv.FormatInt(id, 10)
}

func classifyAs(raw string, re *regexp.Regexp, k Kind) (Reference, error) {
	u, err := parseHTTPURL(raw)
	if err != nil {
		return Reference{}, err
	}
	if ref, ok := matchPath(u, re, k); ok {
		return ref, nil
	}
	return Reference{}, &ClassificationError{Input: raw, Reason: "not a " + string(k) + " URL"}
}

func matchPath(u *url.URL, re *regexp.Regexp, k Kind) (Reference, bool) {
	m := re.FindStringSubmatch(u.Path)
	if m == nil {
		return Reference{}, false
	}
	id, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return Reference{}, false
	}
	return Reference{
		BaseURL:     baseURL(u),
		ProjectPath: url.PathEscape(strings.TrimPrefix(m[1], "/")),
		Kind:        k,
		ID:          id,
	}, true
}

func parseHTTPURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, &ClassificationError{Input: raw, Reason: err.Error()}
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, &ClassificationError{Input: raw, Reason: "missing scheme or host"}
	}
	return u, nil
}

func baseURL(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}
