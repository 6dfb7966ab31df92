package notify_libnotify

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Permission int

const (
	PermissionDefault Permission = iota
	PermissionGranted
	PermissionDenied
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	}
	return "default"
}

// Notifier shows desktop notifications through notify-send. Permission is
// requested on first use: a missing notify-send binary denies it, after
// which every Notify is a silent no-op.
type Notifier struct {
	log    *zap.Logger
	expire time.Duration

	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error

	mu   sync.Mutex
	perm Permission
}

func New(l *zap.Logger) *Notifier {
	return &Notifier{
		log:      l,
		expire:   10 * time.Second,
		lookPath: exec.LookPath,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

// Disabled returns a Notifier whose permission is already denied.
func Disabled(l *zap.Logger) *Notifier {
	n := New(l)
	n.perm = PermissionDenied
	return n
}

func (n *Notifier) Permission() Permission {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.perm
}

// RequestPermission resolves the permission once; later calls return the
// stored answer.
func (n *Notifier) RequestPermission() Permission {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.perm != PermissionDefault {
		return n.perm
	}
	if _, err := n.lookPath("notify-send"); err != nil {
		n.perm = PermissionDenied
		n.log.Info("desktop notifications unavailable", zap.Error(err))
	} else {
		n.perm = PermissionGranted
	}
	return n.perm
}

func (n *Notifier) Notify(ctx context.Context, title, body, url string) error {
	if n.RequestPermission() != PermissionGranted {
		return nil
	}

	if strings.TrimSpace(url) != "" {
		if body == "" {
			body = url
		} else {
			body = body + "\n" + url
		}
	}

	args := []string{"--app-name=ci-tracker"}
	if n.expire > 0 {
		args = append(args, "--expire-time="+strconv.Itoa(int(n.expire/time.Millisecond)))
	}
	args = append(args, title, body)

	if err := n.run(ctx, "notify-send", args...); err != nil {
		n.log.Debug("notify-send failed", zap.String("title", title), zap.Error(err))
	}
	return nil
}
