package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/revision-warden/internal/core"
	"github.com/sevigo/revision-warden/internal/metrics"
)

type hookList []core.Hook

func (l hookList) Hooks() []core.Hook { return l }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcher_IsolatesHookFailures(t *testing.T) {
	var (
		mu       sync.Mutex
		observed []core.Interaction
	)
	hooks := hookList{
		core.HookFunc{HookName: "discord", Fn: func(context.Context, core.Interaction) error {
			return errors.New("webhook unreachable")
		}},
		core.HookFunc{HookName: "panicky", Fn: func(context.Context, core.Interaction) error {
			panic("boom")
		}},
		core.HookFunc{HookName: "jade", Fn: func(_ context.Context, i core.Interaction) error {
			mu.Lock()
			observed = append(observed, i)
			mu.Unlock()
			return nil
		}},
	}
	m := metrics.Nop()
	d := NewDispatcher(hooks, 2, 10, time.Second, m, discardLogger())

	interaction := core.Interaction{Wiki: "enwiki", RevisionID: 989699374, Judgement: core.ShouldRevert}
	require.NoError(t, d.Dispatch(context.Background(), interaction))
	d.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, observed, 1)
	assert.Equal(t, interaction, observed[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HookInvocations.WithLabelValues("discord", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HookInvocations.WithLabelValues("panicky", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HookInvocations.WithLabelValues("jade", "success")))
}

func TestDispatcher_HookTimeout(t *testing.T) {
	var gotErr error
	done := make(chan struct{})
	hooks := hookList{
		core.HookFunc{HookName: "slow", Fn: func(ctx context.Context, _ core.Interaction) error {
			<-ctx.Done()
			gotErr = ctx.Err()
			close(done)
			return ctx.Err()
		}},
	}
	d := NewDispatcher(hooks, 1, 1, 10*time.Millisecond, metrics.Nop(), discardLogger())
	defer d.Stop()

	require.NoError(t, d.Dispatch(context.Background(), core.Interaction{Wiki: "enwiki", RevisionID: 1}))
	select {
	case <-done:
		assert.ErrorIs(t, gotErr, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("hook was not cancelled")
	}
}

func TestDispatcher_FullQueueDefersDelivery(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	hooks := hookList{
		core.HookFunc{HookName: "blocking", Fn: func(context.Context, core.Interaction) error {
			<-release
			calls.Add(1)
			return nil
		}},
	}
	d := NewDispatcher(hooks, 1, 1, 0, metrics.Nop(), discardLogger())

	for i := range 5 {
		require.NoError(t, d.Dispatch(context.Background(), core.Interaction{Wiki: "enwiki", RevisionID: int64(i)}))
	}

	close(release)
	d.Stop()
	assert.Equal(t, int32(5), calls.Load())
	require.ErrorIs(t, d.Dispatch(context.Background(), core.Interaction{}), ErrStopped)
}
