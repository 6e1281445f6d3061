package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/admingate/internal/testutil"
	sserr "github.com/StricklySoft/admingate/pkg/errors"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// recorder collects hook invocations and transitions.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) hook(name string, err error) Hook {
	return func(context.Context) error {
		r.add(name)
		return err
	}
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestBuild_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewServiceBuilder("", "1.0.0").Build()
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)

	_, err = NewServiceBuilder("admingate", "").Build()
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)

	svc, err := NewServiceBuilder("admingate", "1.0.0").Build()
	require.NoError(t, err)
	assert.Equal(t, StateUnknown, svc.State())
	assert.Equal(t, "admingate", svc.Name())
	assert.Equal(t, "1.0.0", svc.Version())
}

func TestService_StartStop(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now := start

	svc, err := NewServiceBuilder("admingate", "1.0.0").
		WithLogger(discardLogger).
		WithClock(func() time.Time { return now }).
		WithOnStart(rec.hook("warm keys", nil)).
		WithOnStart(rec.hook("listen", nil)).
		WithOnStop(rec.hook("close db", nil)).
		WithOnStop(rec.hook("shutdown http", nil)).
		OnStateChange(func(old, new State) { rec.add(string(old) + "->" + string(new)) }).
		Build()
	require.NoError(t, err)

	ctx := context.Background()
	require.Error(t, svc.Health(ctx))

	require.NoError(t, svc.Start(ctx))
	require.NoError(t, svc.Health(ctx))

	now = start.Add(time.Minute)
	info := svc.Info()
	assert.Equal(t, StateRunning, info.State)
	assert.Equal(t, time.Minute, info.Uptime)

	require.NoError(t, svc.Stop(ctx))
	require.NoError(t, svc.Stop(ctx), "stopping twice is a no-op")
	assert.Nil(t, svc.Info().StartedAt)

	assert.Equal(t, []string{
		"unknown->starting",
		"warm keys",
		"listen",
		"starting->running",
		"running->stopping",
		"shutdown http",
		"close db",
		"stopping->stopped",
	}, rec.list())
}

func TestService_StartHookFails(t *testing.T) {
	t.Parallel()
	rec := &recorder{}

	svc, err := NewServiceBuilder("admingate", "1.0.0").
		WithLogger(discardLogger).
		WithOnStart(rec.hook("warm keys", errors.New("issuer unreachable"))).
		WithOnStart(rec.hook("listen", nil)).
		Build()
	require.NoError(t, err)

	err = svc.Start(context.Background())
	testutil.RequireErrorCode(t, err, sserr.CodeInternal)
	assert.Equal(t, StateFailed, svc.State())
	assert.Equal(t, []string{"warm keys"}, rec.list())

	// Failed services can be restarted.
	svc.onStart = nil
	require.NoError(t, svc.Start(context.Background()))
	assert.Equal(t, StateRunning, svc.State())
}

func TestService_StopHookFailsRunsAll(t *testing.T) {
	t.Parallel()
	rec := &recorder{}

	svc, err := NewServiceBuilder("admingate", "1.0.0").
		WithLogger(discardLogger).
		WithOnStop(rec.hook("close db", nil)).
		WithOnStop(rec.hook("shutdown http", errors.New("deadline exceeded"))).
		Build()
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))

	err = svc.Stop(context.Background())
	testutil.RequireErrorCode(t, err, sserr.CodeInternal)
	assert.Equal(t, StateFailed, svc.State())
	assert.Equal(t, []string{"shutdown http", "close db"}, rec.list())
}

func TestService_InvalidTransitions(t *testing.T) {
	t.Parallel()

	svc, err := NewServiceBuilder("admingate", "1.0.0").WithLogger(discardLogger).Build()
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))

	err = svc.Start(context.Background())
	testutil.RequireErrorCode(t, err, sserr.CodeConflict)

	testutil.RequireErrorCode(t, svc.SetState(StateUnknown), sserr.CodeConflict)
}

func TestService_CanceledStart(t *testing.T) {
	t.Parallel()

	svc, err := NewServiceBuilder("admingate", "1.0.0").WithLogger(discardLogger).Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	testutil.RequireErrorCode(t, svc.Start(ctx), sserr.CodeTimeout)
	assert.Equal(t, StateUnknown, svc.State())
}

func TestService_PanickingHandler(t *testing.T) {
	t.Parallel()

	svc, err := NewServiceBuilder("admingate", "1.0.0").
		WithLogger(discardLogger).
		OnStateChange(func(State, State) { panic("observer bug") }).
		Build()
	require.NoError(t, err)

	require.NoError(t, svc.Start(context.Background()))
	assert.Equal(t, StateRunning, svc.State())
}

func TestService_Run(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	started := make(chan struct{})

	svc, err := NewServiceBuilder("admingate", "1.0.0").
		WithLogger(discardLogger).
		WithOnStart(func(context.Context) error { close(started); return nil }).
		WithOnStop(func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				return errors.New("stop context has no deadline")
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			rec.add("stopped")
			return nil
		}).
		Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx, time.Second) }()

	<-started
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, StateStopped, svc.State())
	assert.Equal(t, []string{"stopped"}, rec.list())
}
