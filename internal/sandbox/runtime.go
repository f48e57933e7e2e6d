package sandbox

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/kothrunner/internal/modules"
)

// requireShim builds requireModule around the native loader so that each
// load suspends only its own promise.
const requireShim = `(function (load, shed) {
	function requireModule(path) {
		return new Promise(function (resolve, reject) {
			load(String(path), resolve, reject);
		});
	}
	requireModule.shed = shed;
	return requireModule;
})`

// Runtime wraps one goja VM with the message discipline installed. It is not
// safe for concurrent use: the owning Boundary drives it from a single
// goroutine.
type Runtime struct {
	vm      *goja.Runtime
	config  Config
	loader  Loader
	post    func(raw []byte) error
	channel *MessageChannel[string]
	logger  *zap.Logger

	self      *goja.Object
	parse     goja.Callable
	stringify goja.Callable
	requireFn goja.Value
	listeners map[ListenerID]goja.Value
	modules   map[string]goja.Value
	start     time.Time
	stopped   bool
	fault     error

	// Console output
	console   []LogEntry
	consoleMu sync.Mutex
}

// NewRuntime creates a runtime whose postMessage calls post and whose
// requireModule goes through loader.
func NewRuntime(config Config, loader Loader, post func(raw []byte) error, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Runtime{
		vm:        goja.New(),
		config:    config,
		loader:    loader,
		post:      post,
		channel:   NewMessageChannel[string](),
		logger:    logger,
		listeners: make(map[ListenerID]goja.Value),
		modules:   make(map[string]goja.Value),
		start:     time.Now(),
	}

	if config.MaxCallStackSize > 0 {
		r.vm.SetMaxCallStackSize(config.MaxCallStackSize)
	}

	if err := r.setupGlobals(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	return r, nil
}

// RunProgram executes p on the VM.
func (r *Runtime) RunProgram(p *goja.Program) error {
	_, err := r.vm.RunProgram(p)
	return r.settleErr(err)
}

// Receive handles one inbound message from the host. Code deliveries go to
// the loader; everything else goes through the message channel.
func (r *Runtime) Receive(raw []byte) error {
	msg, err := DecodeMessage(raw)
	if err != nil {
		return &ProtocolError{Op: "receive", Reason: err.Error()}
	}

	switch msg.Kind {
	case KindDelivery:
		var loadErr error
		if msg.Error != "" {
			loadErr = errors.New(msg.Error)
		}
		err = r.loader.Deliver(msg.Path, msg.Code, loadErr)
	case KindData:
		err = r.channel.Dispatch(string(raw))
	default:
		err = &ProtocolError{Op: "receive", Reason: "unexpected " + msg.Kind.String() + " message from host"}
	}
	return r.settleErr(err)
}

// Interrupt aborts any running JS. Safe to call from any goroutine.
func (r *Runtime) Interrupt(v interface{}) {
	r.vm.Interrupt(v)
}

// Console returns a copy of the captured console output.
func (r *Runtime) Console() []LogEntry {
	r.consoleMu.Lock()
	defer r.consoleMu.Unlock()
	return append([]LogEntry(nil), r.console...)
}

// Channel exposes the inbound message channel.
func (r *Runtime) Channel() *MessageChannel[string] {
	return r.channel
}

// stop makes late load completions no-ops.
func (r *Runtime) stop() {
	r.stopped = true
}

// setupGlobals configures global objects and security
func (r *Runtime) setupGlobals() error {
	// Remove dangerous globals
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := r.vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	r.self = r.vm.GlobalObject()
	if err := r.vm.Set("self", r.self); err != nil {
		return err
	}

	json := r.vm.Get("JSON").ToObject(r.vm)
	var ok bool
	if r.parse, ok = goja.AssertFunction(json.Get("parse")); !ok {
		return errors.New("JSON.parse unavailable")
	}
	if r.stringify, ok = goja.AssertFunction(json.Get("stringify")); !ok {
		return errors.New("JSON.stringify unavailable")
	}

	globals := map[string]interface{}{
		"addEventListener":    r.addEventListener,
		"removeEventListener": r.removeEventListener,
		"postMessage":         r.postMessage,
		// Timers are no-ops; games drive their own step loop.
		"setTimeout":  func(goja.FunctionCall) goja.Value { return goja.Undefined() },
		"setInterval": func(goja.FunctionCall) goja.Value { return goja.Undefined() },
	}
	for name, fn := range globals {
		if err := r.vm.Set(name, fn); err != nil {
			return err
		}
	}

	performance := r.vm.NewObject()
	if err := performance.Set("now", r.now); err != nil {
		return err
	}
	if err := r.vm.Set("performance", performance); err != nil {
		return err
	}

	console := r.vm.NewObject()
	for _, level := range []string{"log", "warn", "error", "info", "debug"} {
		if err := console.Set(level, r.makeConsoleFunc(level)); err != nil {
			return err
		}
	}
	if err := r.vm.Set("console", console); err != nil {
		return err
	}

	shim, err := r.vm.RunString(requireShim)
	if err != nil {
		return err
	}
	factory, ok := goja.AssertFunction(shim)
	if !ok {
		return errors.New("requireModule factory is not a function")
	}
	r.requireFn, err = factory(goja.Undefined(), r.vm.ToValue(r.load), r.vm.ToValue(r.shed))
	if err != nil {
		return err
	}
	return r.vm.Set("requireModule", r.requireFn)
}

func (r *Runtime) addEventListener(call goja.FunctionCall) goja.Value {
	if call.Argument(0).String() != "message" {
		return goja.Undefined()
	}
	fnVal := call.Argument(1)
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		panic(r.vm.NewTypeError("addEventListener: listener is not a function"))
	}
	for _, existing := range r.listeners {
		if existing.SameAs(fnVal) {
			return goja.Undefined()
		}
	}

	id, err := r.channel.AddListener(r.wrapListener(fn))
	r.listeners[id] = fnVal
	if err != nil {
		r.rethrow(err)
	}
	return goja.Undefined()
}

func (r *Runtime) removeEventListener(call goja.FunctionCall) goja.Value {
	if call.Argument(0).String() != "message" {
		return goja.Undefined()
	}
	fnVal := call.Argument(1)
	for id, existing := range r.listeners {
		if existing.SameAs(fnVal) {
			r.channel.RemoveListener(id)
			delete(r.listeners, id)
			break
		}
	}
	return goja.Undefined()
}

func (r *Runtime) wrapListener(fn goja.Callable) Listener[string] {
	return func(data string) error {
		parsed, err := r.parse(goja.Undefined(), r.vm.ToValue(data))
		if err != nil {
			return err
		}
		event := r.vm.NewObject()
		_ = event.Set("type", "message")
		_ = event.Set("data", parsed)
		_, err = fn(r.self, event)
		return err
	}
}

func (r *Runtime) postMessage(call goja.FunctionCall) goja.Value {
	raw, err := r.stringify(goja.Undefined(), call.Argument(0))
	if err != nil {
		r.rethrow(err)
	}
	data := "null"
	if !goja.IsUndefined(raw) {
		data = raw.String()
	}
	if err := r.post([]byte(data)); err != nil {
		panic(r.vm.NewGoError(err))
	}
	return goja.Undefined()
}

// now backs performance.now. Without a monotonic clock it degrades to
// wall-clock milliseconds.
func (r *Runtime) now(goja.FunctionCall) goja.Value {
	if r.config.MonotonicClock {
		return r.vm.ToValue(float64(time.Since(r.start).Nanoseconds()) / float64(time.Millisecond))
	}
	return r.vm.ToValue(float64(time.Now().UnixMilli()))
}

func (r *Runtime) load(call goja.FunctionCall) goja.Value {
	path := call.Argument(0).String()
	resolve, _ := goja.AssertFunction(call.Argument(1))
	reject, _ := goja.AssertFunction(call.Argument(2))

	if exports, ok := r.modules[path]; ok {
		r.settle(resolve, exports)
		return goja.Undefined()
	}
	if err := modules.ValidatePath(path); err != nil {
		r.settle(reject, r.vm.NewGoError(err))
		return goja.Undefined()
	}

	r.loader.Load(path, func(code string, err error) {
		if r.stopped {
			return
		}
		if err != nil {
			r.settle(reject, r.vm.NewGoError(fmt.Errorf("requireModule %q: %w", path, err)))
			return
		}
		exports, err := r.evaluate(path, code)
		if err != nil {
			var ex *goja.Exception
			if errors.As(err, &ex) {
				r.settle(reject, ex.Value())
				return
			}
			r.recordFault(err)
			r.settle(reject, r.vm.NewGoError(err))
			return
		}
		r.settle(resolve, exports)
	})
	return goja.Undefined()
}

func (r *Runtime) shed(goja.FunctionCall) goja.Value {
	r.loader.Shed()
	return goja.Undefined()
}

// evaluate runs module code CommonJS-style and caches its exports.
func (r *Runtime) evaluate(path, code string) (goja.Value, error) {
	if exports, ok := r.modules[path]; ok {
		return exports, nil
	}

	src := "(function (module, exports, requireModule) {\n" + code + "\n})"
	prg, err := goja.Compile(path, src, false)
	if err != nil {
		return nil, err
	}
	wrapper, err := r.vm.RunProgram(prg)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(wrapper)
	if !ok {
		return nil, fmt.Errorf("module %q did not compile to a function", path)
	}

	module := r.vm.NewObject()
	exports := r.vm.NewObject()
	_ = module.Set("exports", exports)
	if _, err := fn(goja.Undefined(), module, exports, r.requireFn); err != nil {
		return nil, err
	}

	result := module.Get("exports")
	r.modules[path] = result
	return result, nil
}

func (r *Runtime) settle(fn goja.Callable, v goja.Value) {
	if fn == nil {
		return
	}
	if _, err := fn(goja.Undefined(), v); err != nil {
		r.recordFault(err)
	}
}

func (r *Runtime) recordFault(err error) {
	var ie *goja.InterruptedError
	if errors.As(err, &ie) && r.fault == nil {
		r.fault = err
	}
}

// settleErr merges a recorded interrupt into the result of a VM entry.
func (r *Runtime) settleErr(err error) error {
	if r.fault != nil {
		fault := r.fault
		r.fault = nil
		if err == nil {
			return fault
		}
	}
	return err
}

// rethrow turns an error from a nested call back into a JS exception.
func (r *Runtime) rethrow(err error) {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		panic(ex.Value())
	}
	panic(r.vm.NewGoError(err))
}

// makeConsoleFunc creates a console function
func (r *Runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if !r.config.EnableConsole {
			return goja.Undefined()
		}

		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}

		r.consoleMu.Lock()
		r.console = append(r.console, LogEntry{
			Level:   level,
			Message: strings.Join(parts, " "),
			Time:    time.Now(),
		})
		r.consoleMu.Unlock()

		return goja.Undefined()
	}
}
