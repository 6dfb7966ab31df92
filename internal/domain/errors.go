package domain

import "fmt"

// ClassificationError reports a URL that is not a recognisable GitLab job,
// pipeline or repository address.
type ClassificationError struct {
	Input  string
	Reason string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("invalid GitLab URL %q: %s", e.Input, e.Reason)
}

// GatewayError is a failed call against the GitLab API.
type GatewayError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: gitlab %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}
