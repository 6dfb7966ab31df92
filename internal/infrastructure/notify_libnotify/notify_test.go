package notify_libnotify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

type recorder struct {
	lookups int
	calls   [][]string
	err     error
}

func newTestNotifier(found bool, rec *recorder) *Notifier {
	n := New(zap.NewNop())
	n.lookPath = func(string) (string, error) {
		rec.lookups++
		if !found {
			return "", errors.New("not found")
		}
		return "/usr/bin/notify-send", nil
	}
	n.run = func(_ context.Context, name string, args ...string) error {
		rec.calls = append(rec.calls, append([]string{name}, args...))
		return rec.err
	}
	return n
}

func TestNotify_GrantedSendsTitleAndBodyWithURL(t *testing.T) {
	rec := &recorder{}
	n := newTestNotifier(true, rec)

	if err := n.Notify(context.Background(), "✅ Job completed", "unit on main", "https://g/j/1"); err != nil {
		t.Fatal(err)
	}
	if n.Permission() != PermissionGranted || len(rec.calls) != 1 {
		t.Fatalf("perm=%s calls=%v", n.Permission(), rec.calls)
	}
	args := rec.calls[0]
	if args[len(args)-2] != "✅ Job completed" || args[len(args)-1] != "unit on main\nhttps://g/j/1" {
		t.Errorf("args = %v", args)
	}
	if !strings.HasPrefix(strings.Join(args, " "), "notify-send --app-name=ci-tracker") {
		t.Errorf("args = %v", args)
	}
}

func TestNotify_DeniedIsSilentNoOp(t *testing.T) {
	rec := &recorder{}
	n := newTestNotifier(false, rec)

	for i := 0; i < 3; i++ {
		if err := n.Notify(context.Background(), "t", "b", ""); err != nil {
			t.Fatal(err)
		}
	}
	if n.Permission() != PermissionDenied || len(rec.calls) != 0 {
		t.Errorf("perm=%s calls=%d", n.Permission(), len(rec.calls))
	}
	if rec.lookups != 1 {
		t.Errorf("permission requested %d times", rec.lookups)
	}
}

func TestNotify_DisabledNeverLooksUp(t *testing.T) {
	rec := &recorder{}
	n := newTestNotifier(true, rec)
	n.perm = PermissionDenied

	_ = n.Notify(context.Background(), "t", "b", "")
	if rec.lookups != 0 || len(rec.calls) != 0 {
		t.Errorf("lookups=%d calls=%d", rec.lookups, len(rec.calls))
	}
}

func TestNotify_RunFailureIsSwallowed(t *testing.T) {
	rec := &recorder{err: errors.New("dbus down")}
	n := newTestNotifier(true, rec)

	if err := n.Notify(context.Background(), "t", "", ""); err != nil {
		t.Errorf("err = %v", err)
	}
}
