package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name   string
	titles []string
	fail   bool
}

func (r *recordingSender) Send(ctx context.Context, title, message string) error {
	if r.fail {
		return errors.New("boom")
	}
	r.titles = append(r.titles, title)
	return nil
}

func (r *recordingSender) Name() string { return r.name }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFansOutToAllSenders(t *testing.T) {
	a := &recordingSender{name: "a"}
	b := &recordingSender{name: "b"}
	n := NewNotifier([]Sender{a, b}, nil, discard())

	err := n.Notify(context.Background(), "hedge_failed", "hedge failed", "details")
	require.NoError(t, err)
	assert.Equal(t, []string{"hedge failed"}, a.titles)
	assert.Equal(t, []string{"hedge failed"}, b.titles)
}

func TestNotifyFiltersEvents(t *testing.T) {
	a := &recordingSender{name: "a"}
	n := NewNotifier([]Sender{a}, []string{"hedge_failed"}, discard())

	require.NoError(t, n.Notify(context.Background(), "trade_settled", "t", "m"))
	assert.Empty(t, a.titles)

	require.NoError(t, n.Notify(context.Background(), "hedge_failed", "t", "m"))
	assert.Len(t, a.titles, 1)
}

// A hedge failure goes out even when the subscription list omits it.
func TestNotifyHedgeFailedBypassesFilter(t *testing.T) {
	a := &recordingSender{name: "a"}
	n := NewNotifier([]Sender{a}, []string{"error"}, discard())

	require.NoError(t, n.Notify(context.Background(), "hedge_failed", "hedge failed", "m"))
	assert.Len(t, a.titles, 1)

	require.NoError(t, n.Notify(context.Background(), "trade_settled", "t", "m"))
	assert.Len(t, a.titles, 1, "non-critical events still filtered")
}

func TestNotifyFailureDoesNotBlockOthers(t *testing.T) {
	bad := &recordingSender{name: "bad", fail: true}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.Notify(context.Background(), "hedge_failed", "t", "m")
	require.Error(t, err)
	assert.Len(t, good.titles, 1)
}
