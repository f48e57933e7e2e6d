package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/kothrunner/internal/modules"
	"github.com/GriffinCanCode/kothrunner/internal/shared/id"
)

const (
	jobBuffer     = 64
	outboxBuffer  = 64
	messageBuffer = 16
)

var errTerminated = errors.New("sandbox: terminated by host")

// Option configures a Boundary.
type Option func(*Boundary)

// WithSource sets where module code is fetched from.
func WithSource(source modules.Source) Option {
	return func(b *Boundary) { b.source = source }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Boundary) { b.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(b *Boundary) { b.metrics = metrics }
}

// Boundary is the host side of one execution context. The VM is owned by a
// loop goroutine; the host talks to it only through Send and Messages.
// A Boundary is never reused.
type Boundary struct {
	id      id.ContextID
	config  Config
	source  modules.Source
	logger  *zap.Logger
	metrics *monitoring.Metrics

	ctx    context.Context
	cancel context.CancelCauseFunc

	rt       *Runtime
	loader   Loader
	jobs     chan func() error
	outbox   chan []byte
	messages chan json.RawMessage
	ready    chan struct{}
	done     chan struct{}
	closed   chan struct{}

	mu  sync.Mutex
	err error
}

// Spawn creates an execution context and runs bootstrap inside it. The
// context posts its ready signal before bootstrap starts.
func Spawn(ctx context.Context, config Config, bootstrap string, opts ...Option) (*Boundary, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	b := &Boundary{
		id:       id.NewContextID(),
		config:   config,
		jobs:     make(chan func() error, jobBuffer),
		outbox:   make(chan []byte, outboxBuffer),
		messages: make(chan json.RawMessage, messageBuffer),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.source == nil {
		b.source = modules.NewMapSource(nil)
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	b.logger = b.logger.With(zap.String("context_id", b.id.String()))

	prg, err := goja.Compile("bootstrap.js", bootstrap, false)
	if err != nil {
		return nil, fmt.Errorf("%w: compile bootstrap: %w", ErrSpawn, err)
	}

	b.ctx, b.cancel = context.WithCancelCause(ctx)
	if config.Restricted {
		b.loader = NewRestrictedLoader(b.postMessage, b.logger)
	} else {
		b.loader = NewDirectLoader(b.ctx, b.source, b.metrics)
	}

	b.rt, err = NewRuntime(config, b.loader, b.postRaw, b.logger)
	if err != nil {
		b.cancel(err)
		return nil, err
	}

	stopInterrupt := context.AfterFunc(b.ctx, func() {
		b.rt.Interrupt(context.Cause(b.ctx))
	})
	var timer *time.Timer
	if config.Timeout > 0 {
		timer = time.AfterFunc(config.Timeout, func() { b.cancel(ErrTimeout) })
	}

	b.metrics.ContextStarted()
	b.logger.Debug("Execution context spawned", zap.String("mode", b.loader.Mode()))

	go b.pump()
	go b.loop(prg, stopInterrupt, timer)
	return b, nil
}

// ID returns the context identifier.
func (b *Boundary) ID() id.ContextID {
	return b.id
}

// Mode returns the loader mode.
func (b *Boundary) Mode() string {
	return b.loader.Mode()
}

// WaitReady blocks until the context has installed its message discipline.
func (b *Boundary) WaitReady(ctx context.Context) error {
	select {
	case <-b.ready:
		return nil
	case <-b.closed:
		if err := b.Err(); err != nil {
			return err
		}
		return ErrTornDown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send serializes v and delivers it to the context. Sending before the
// ready signal is a protocol violation and tears the context down.
func (b *Boundary) Send(v interface{}) error {
	select {
	case <-b.ready:
	default:
		b.fail(&ProtocolError{Op: "send", Reason: "context is not ready"})
		return ErrNotReady
	}

	var (
		raw []byte
		err error
	)
	if m, ok := v.(Message); ok {
		raw, err = m.MarshalJSON()
	} else {
		raw, err = sonic.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("sandbox: encode message: %w", err)
	}
	return b.enqueue(func() error { return b.rt.Receive(raw) })
}

// Messages returns application messages posted by the context. The channel
// is closed once the context is torn down.
func (b *Boundary) Messages() <-chan json.RawMessage {
	return b.messages
}

// Done is closed when the context is fully torn down.
func (b *Boundary) Done() <-chan struct{} {
	return b.closed
}

// Err returns why the context stopped: nil while running or after a host
// Terminate, otherwise a *ProgramError, *ProtocolError, ErrTimeout or an
// error wrapping ErrTornDown.
func (b *Boundary) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err == nil || errors.Is(b.err, errTerminated) {
		return nil
	}
	return b.err
}

// Console returns captured console output.
func (b *Boundary) Console() []LogEntry {
	return b.rt.Console()
}

// Pending returns the number of module paths awaiting delivery.
func (b *Boundary) Pending() int {
	return b.loader.Pending()
}

// Terminate tears the context down and waits for it. It is idempotent.
func (b *Boundary) Terminate() {
	b.cancel(errTerminated)
	<-b.closed
}

func (b *Boundary) loop(prg *goja.Program, stopInterrupt func() bool, timer *time.Timer) {
	defer func() {
		if timer != nil {
			timer.Stop()
		}
		stopInterrupt()
		b.rt.stop()
		b.loader.Close()
		b.finish()
		close(b.outbox)
		close(b.done)
	}()

	err := b.run(func() error {
		if err := b.postMessage(ReadyMessage()); err != nil {
			return err
		}
		return b.rt.RunProgram(prg)
	})
	if err != nil {
		b.fail(err)
		return
	}

	for {
		select {
		case job := <-b.jobs:
			if err := b.run(job); err != nil {
				b.fail(err)
				return
			}
		case <-b.ctx.Done():
			return
		}
	}
}

// pump routes everything the context posts. It exits once the loop has
// exited and the outbox is drained.
func (b *Boundary) pump() {
	defer close(b.closed)
	defer close(b.messages)

	var ready, shed bool
	for raw := range b.outbox {
		msg, err := DecodeMessage(raw)
		if err != nil {
			b.fail(&ProtocolError{Op: "post", Reason: err.Error()})
			continue
		}

		switch msg.Kind {
		case KindReady:
			if ready {
				b.fail(&ProtocolError{Op: "post", Reason: "duplicate ready signal"})
				continue
			}
			ready = true
			close(b.ready)
		case KindLoadRequest:
			switch {
			case b.loader.Mode() != ModeRestricted:
				b.fail(&ProtocolError{Op: "load", Path: msg.Path, Reason: "load request from a direct context"})
			case shed:
				b.fail(&ProtocolError{Op: "load", Path: msg.Path, Reason: "load request after shed"})
			default:
				go b.answer(msg.Path)
			}
		case KindShed:
			shed = true
			b.logger.Debug("Module loading shed")
		case KindDelivery:
			b.fail(&ProtocolError{Op: "post", Path: msg.Path, Reason: "code delivery sent by the context"})
		default:
			select {
			case b.messages <- msg.Data:
			case <-b.ctx.Done():
			}
		}
	}
}

// answer fetches path from the host source and delivers it, or the fetch
// error, back into the context.
func (b *Boundary) answer(path string) {
	timer := monitoring.NewTimer(b.metrics, monitoring.OpModuleFetch)
	code, err := b.source.Fetch(b.ctx, path)
	status := loadStatus(err)
	timer.Stop(status)
	b.metrics.RecordModuleLoad(ModeRestricted, status)

	if err != nil {
		b.logger.Debug("Module fetch failed", zap.String("path", path), zap.Error(err))
	}

	raw, mErr := Delivery(path, code, err).MarshalJSON()
	if mErr != nil {
		b.fail(mErr)
		return
	}
	_ = b.enqueue(func() error { return b.rt.Receive(raw) })
}

func (b *Boundary) enqueue(job func() error) error {
	if b.ctx.Err() != nil {
		return ErrTornDown
	}
	select {
	case b.jobs <- job:
		return nil
	case <-b.ctx.Done():
		return ErrTornDown
	}
}

func (b *Boundary) postMessage(m Message) error {
	raw, err := m.MarshalJSON()
	if err != nil {
		return err
	}
	return b.postRaw(raw)
}

func (b *Boundary) postRaw(raw []byte) error {
	select {
	case b.outbox <- raw:
		return nil
	case <-b.ctx.Done():
		return ErrTornDown
	}
}

// run executes one unit of work on the VM and classifies its failure.
func (b *Boundary) run(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if e, ok := rec.(error); ok {
				err = b.classify(e)
			} else {
				err = b.classify(fmt.Errorf("sandbox: panic: %v", rec))
			}
		}
	}()
	return b.classify(fn())
}

func (b *Boundary) classify(err error) error {
	if err == nil {
		return nil
	}

	var ie *goja.InterruptedError
	if errors.As(err, &ie) || b.ctx.Err() != nil {
		return b.stopCause()
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return &ProgramError{Message: ex.Error(), Stack: ex.String(), Err: err}
	}
	return err
}

// fail records the first failure and tears the context down.
func (b *Boundary) fail(err error) {
	if err == nil {
		return
	}

	b.mu.Lock()
	first := b.err == nil
	if first {
		b.err = err
	}
	b.mu.Unlock()

	if !first {
		return
	}

	var pe *ProtocolError
	switch {
	case errors.As(err, &pe):
		b.metrics.IncProtocolViolations()
		b.logger.Warn("Protocol violation", zap.Error(err))
	case errors.Is(err, errTerminated):
	default:
		b.logger.Info("Execution context failed", zap.Error(err))
	}
	b.cancel(err)
}

// finish records why the loop exited when no failure was recorded first.
func (b *Boundary) finish() {
	b.mu.Lock()
	if b.err == nil {
		b.err = b.stopCause()
	}
	err := b.err
	b.mu.Unlock()

	b.cancel(ErrTornDown)
	b.metrics.ContextStopped(outcome(err))
	b.logger.Debug("Execution context stopped", zap.String("outcome", outcome(err)))
}

// stopCause maps the cancellation cause of the context to the error Err
// reports.
func (b *Boundary) stopCause() error {
	cause := context.Cause(b.ctx)
	switch {
	case cause == nil:
		return errTerminated
	case errors.Is(cause, errTerminated), errors.Is(cause, ErrTimeout):
		return cause
	default:
		return fmt.Errorf("%w: %w", ErrTornDown, cause)
	}
}

func outcome(err error) string {
	var (
		pe *ProtocolError
		ge *ProgramError
	)
	switch {
	case errors.Is(err, errTerminated):
		return "terminated"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &pe):
		return "protocol_violation"
	case errors.As(err, &ge):
		return "program_error"
	default:
		return "torn_down"
	}
}
