package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/admingate/pkg/errors"
)

const tracerName = "github.com/StricklySoft/admingate/pkg/lifecycle"

// Hook runs during Start or Stop.
type Hook func(ctx context.Context) error

// StateChangeHandler observes transitions. It receives the state before and
// after a successful transition.
//
// Handlers run synchronously under the service's state lock, in registration
// order. A handler must not call any method of the same Service: State,
// Info, Health, SetState, Start and Stop all take that lock, so calling
// them from a handler deadlocks. A handler must not block either, because
// every other caller waits for it. A panicking handler is logged and does
// not stop later handlers.
type StateChangeHandler func(old, new State)

// Info is a point-in-time snapshot of a service.
type Info struct {
	Name      string        `json:"name"`
	Version   string        `json:"version"`
	State     State         `json:"state"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
}

// Service is a long-lived process with start and stop hooks and a validated
// state machine. Build one with [NewServiceBuilder].
//
// A Service is safe for concurrent use by multiple goroutines. Its state
// only moves along the transitions allowed by [ValidTransition]; an invalid
// transition is rejected with [sserr.CodeConflict] and leaves the state
// unchanged.
//
// Start and Stop hooks run outside the state lock, so a hook may call State
// or Info. State change handlers run inside it (see [StateChangeHandler]).
//
// # Usage
//
//	svc, err := lifecycle.NewServiceBuilder("admingate", version).
//	    WithLogger(logger).
//	    WithOnStart(verifier.Warm).
//	    WithOnStop(shutdownHTTP).
//	    Build()
//	if err != nil {
//	    return err
//	}
//	return svc.Run(ctx, 10*time.Second)
type Service struct {
	name    string
	version string

	mu        sync.RWMutex
	state     State
	startedAt *time.Time

	tracer trace.Tracer
	logger *slog.Logger
	now    func() time.Time

	onStart       []Hook
	onStop        []Hook
	stateHandlers []StateChangeHandler
}

// Name returns the service name given to the builder.
func (s *Service) Name() string { return s.name }

func (s *Service) Version() string { return s.version }

// State returns the current state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Info returns a snapshot including uptime while running.
func (s *Service) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{Name: s.name, Version: s.version, State: s.state}
	if s.startedAt != nil && s.state == StateRunning {
		t := *s.startedAt
		info.StartedAt = &t
		info.Uptime = s.now().Sub(t)
	}
	return info
}

// Health returns nil only while running. Any other state is reported with
// [sserr.CodeUnavailable], which the admin API maps to 503.
func (s *Service) Health(_ context.Context) error {
	if state := s.State(); state != StateRunning {
		return sserr.Newf(sserr.CodeUnavailable, "lifecycle: %s is %s", s.name, state)
	}
	return nil
}

// SetState moves the service to next after checking the transition against
// [ValidTransition]. It returns [sserr.CodeConflict] and changes nothing when
// the transition is not allowed.
//
// On success every registered [StateChangeHandler] is called synchronously
// with the old and new state, in registration order, while SetState still
// holds the state lock. Handlers therefore observe transitions in the order
// they happened, and a handler that calls State, Info or SetState on the same
// service deadlocks.
//
// Start and Stop call SetState themselves. Call it directly only to report a
// failure detected outside the hooks:
//
//	if err := db.Health(ctx); err != nil {
//	    logger.ErrorContext(ctx, "database lost", "error", err)
//	    _ = svc.SetState(lifecycle.StateFailed)
//	}
func (s *Service) SetState(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.state
	if !ValidTransition(old, next) {
		return sserr.Newf(sserr.CodeConflict,
			"lifecycle: invalid state transition from %q to %q", old, next)
	}
	s.state = next

	for _, h := range s.stateHandlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("lifecycle: state change handler panicked",
						"panic", r,
						"service", s.name,
						"old_state", string(old),
						"new_state", string(next),
					)
				}
			}()
			h(old, next)
		}()
	}
	return nil
}

// Start moves the service to Starting, runs the start hooks in order and
// moves to Running.
//
// The first failing hook moves the service to Failed and its error is
// returned wrapped with [sserr.CodeInternal]; hooks after it do not run. A ctx
// that is already done fails with [sserr.CodeTimeout] before any state
// change. Starting a service that is not Unknown, Stopped or Failed fails with
// [sserr.CodeConflict].
func (s *Service) Start(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, "lifecycle.Start")
	defer func() { finishSpan(span, err) }()

	if err := ctx.Err(); err != nil {
		return sserr.Wrap(err, sserr.CodeTimeout, "lifecycle: start canceled before execution")
	}
	if err := s.SetState(StateStarting); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "lifecycle: starting", "service", s.name, "version", s.version)

	for i, hook := range s.onStart {
		if err := hook(ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: start hook failed",
				"service", s.name, "hook", i, "error", err)
			_ = s.SetState(StateFailed)
			return sserr.Wrap(err, sserr.CodeInternal, "lifecycle: start hook failed")
		}
	}

	if err := s.SetState(StateRunning); err != nil {
		return err
	}
	now := s.now().UTC()
	s.mu.Lock()
	s.startedAt = &now
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: started", "service", s.name)
	return nil
}

// Stop runs every stop hook in reverse registration order and moves to
// Stopped, or to Failed when any hook failed. Stopping a terminal service
// is a no-op.
func (s *Service) Stop(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, "lifecycle.Stop")
	defer func() { finishSpan(span, err) }()

	if s.State().IsTerminal() {
		return nil
	}
	if err := s.SetState(StateStopping); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "lifecycle: stopping", "service", s.name)

	var errs []error
	for i := len(s.onStop) - 1; i >= 0; i-- {
		if err := s.onStop[i](ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: stop hook failed",
				"service", s.name, "hook", i, "error", err)
			errs = append(errs, err)
		}
	}

	s.mu.Lock()
	s.startedAt = nil
	s.mu.Unlock()

	if len(errs) > 0 {
		_ = s.SetState(StateFailed)
		return sserr.Wrap(errors.Join(errs...), sserr.CodeInternal, "lifecycle: stop hook failed")
	}
	if err := s.SetState(StateStopped); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "lifecycle: stopped", "service", s.name)
	return nil
}

// Run starts the service, blocks until ctx is done, then stops it.
//
// A Start failure is returned immediately and Stop is not called; the
// service is then in [StateFailed]. Once ctx is done Run calls Stop with a
// new context that keeps ctx's values but not its cancellation, bounded by
// shutdownTimeout, and returns Stop's error. A clean shutdown after a signal
// therefore returns nil.
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	if err := svc.Run(ctx, cfg.ShutdownTimeout); err != nil {
//	    logger.Error("exited with error", "error", err)
//	}
func (s *Service) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return s.Stop(stopCtx)
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.name", s.name),
			attribute.String("service.version", s.version),
		),
	)
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// ServiceBuilder constructs a [Service].
//
//	svc, err := lifecycle.NewServiceBuilder("admingate", version).
//	    WithLogger(logger).
//	    WithOnStart(verifier.Warm).
//	    WithOnStop(func(context.Context) error { db.Close(); return nil }).
//	    Build()
type ServiceBuilder struct {
	name          string
	version       string
	logger        *slog.Logger
	now           func() time.Time
	onStart       []Hook
	onStop        []Hook
	stateHandlers []StateChangeHandler
}

// NewServiceBuilder starts a builder. name and version are checked by
// [ServiceBuilder.Build].
func NewServiceBuilder(name, version string) *ServiceBuilder {
	return &ServiceBuilder{name: name, version: version}
}

func (b *ServiceBuilder) WithLogger(logger *slog.Logger) *ServiceBuilder {
	b.logger = logger
	return b
}

// WithClock overrides the time source for uptime.
func (b *ServiceBuilder) WithClock(now func() time.Time) *ServiceBuilder {
	b.now = now
	return b
}

// WithOnStart appends a start hook. Nil hooks are ignored.
func (b *ServiceBuilder) WithOnStart(hook Hook) *ServiceBuilder {
	if hook != nil {
		b.onStart = append(b.onStart, hook)
	}
	return b
}

// WithOnStop appends a stop hook. Stop hooks run in reverse order.
func (b *ServiceBuilder) WithOnStop(hook Hook) *ServiceBuilder {
	if hook != nil {
		b.onStop = append(b.onStop, hook)
	}
	return b
}

// OnStateChange registers a handler for every later transition. Nil
// handlers are ignored. See [StateChangeHandler] for the locking rules.
func (b *ServiceBuilder) OnStateChange(h StateChangeHandler) *ServiceBuilder {
	if h != nil {
		b.stateHandlers = append(b.stateHandlers, h)
	}
	return b
}

// Build validates the builder. Failures carry [sserr.CodeValidationRequired].
func (b *ServiceBuilder) Build() (*Service, error) {
	if b.name == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "lifecycle: service name is required")
	}
	if b.version == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "lifecycle: service version is required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}
	return &Service{
		name:          b.name,
		version:       b.version,
		state:         StateUnknown,
		tracer:        otel.Tracer(tracerName),
		logger:        logger,
		now:           now,
		onStart:       append([]Hook(nil), b.onStart...),
		onStop:        append([]Hook(nil), b.onStop...),
		stateHandlers: append([]StateChangeHandler(nil), b.stateHandlers...),
	}, nil
}
