package sandbox

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/kothrunner/internal/modules"
)

// Loader modes, also used as metric labels.
const (
	ModeRestricted = "restricted"
	ModeDirect     = "direct"
)

// LoadFunc completes one module load.
type LoadFunc func(code string, err error)

// Loader fetches module source on behalf of an execution context. The
// implementation is chosen once, when the context is spawned.
type Loader interface {
	// Load starts fetching path and calls done exactly once.
	Load(path string, done LoadFunc)
	// Deliver hands the host's answer for path to the waiting loads.
	Deliver(path, code string, loadErr error) error
	// Shed announces that no further loads will be requested.
	Shed()
	// Close releases every pending load with ErrTornDown.
	Close()
	// Pending returns the number of paths awaiting delivery.
	Pending() int
	Mode() string
}

// PendingLoad is an outstanding request for one module path.
type PendingLoad struct {
	Path    string
	waiters []LoadFunc
}

// RestrictedLoader proxies loads through the host. At most one request per
// path is outstanding; later loads of the same path join it.
type RestrictedLoader struct {
	post   func(Message) error
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]*PendingLoad
	shed    bool
	closed  bool
}

// NewRestrictedLoader creates a loader that posts requests with post.
func NewRestrictedLoader(post func(Message) error, logger *zap.Logger) *RestrictedLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RestrictedLoader{
		post:    post,
		logger:  logger,
		pending: make(map[string]*PendingLoad),
	}
}

func (l *RestrictedLoader) Mode() string { return ModeRestricted }

func (l *RestrictedLoader) Load(path string, done LoadFunc) {
	l.mu.Lock()
	switch {
	case l.closed:
		l.mu.Unlock()
		done("", ErrTornDown)
		return
	case l.shed:
		l.mu.Unlock()
		done("", ErrShed)
		return
	}

	if p, ok := l.pending[path]; ok {
		p.waiters = append(p.waiters, done)
		l.mu.Unlock()
		l.logger.Debug("Joining pending module load", zap.String("path", path))
		return
	}
	l.pending[path] = &PendingLoad{Path: path, waiters: []LoadFunc{done}}
	l.mu.Unlock()

	if err := l.post(LoadRequest(path)); err != nil {
		for _, w := range l.take(path) {
			w("", err)
		}
	}
}

func (l *RestrictedLoader) Deliver(path, code string, loadErr error) error {
	waiters := l.take(path)
	if waiters == nil {
		return &ProtocolError{Op: "deliver", Path: path, Reason: "no pending load"}
	}
	for _, w := range waiters {
		w(code, loadErr)
	}
	return nil
}

func (l *RestrictedLoader) Shed() {
	l.mu.Lock()
	if l.shed || l.closed {
		l.mu.Unlock()
		return
	}
	l.shed = true
	l.mu.Unlock()

	if err := l.post(ShedMessage()); err != nil {
		l.logger.Debug("Failed to post shed", zap.Error(err))
	}
}

func (l *RestrictedLoader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	pending := l.pending
	l.pending = make(map[string]*PendingLoad)
	l.mu.Unlock()

	for _, p := range pending {
		for _, w := range p.waiters {
			w("", ErrTornDown)
		}
	}
}

func (l *RestrictedLoader) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

func (l *RestrictedLoader) take(path string) []LoadFunc {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.pending[path]
	if !ok {
		return nil
	}
	delete(l.pending, path)
	return p.waiters
}

// DirectLoader fetches modules itself. It is used for trusted contexts and
// keeps no bookkeeping; a host delivery is never expected.
type DirectLoader struct {
	ctx     context.Context
	source  modules.Source
	metrics *monitoring.Metrics
}

// NewDirectLoader creates a loader reading from source.
func NewDirectLoader(ctx context.Context, source modules.Source, metrics *monitoring.Metrics) *DirectLoader {
	return &DirectLoader{ctx: ctx, source: source, metrics: metrics}
}

func (l *DirectLoader) Mode() string { return ModeDirect }

func (l *DirectLoader) Load(path string, done LoadFunc) {
	timer := monitoring.NewTimer(l.metrics, monitoring.OpModuleFetch)
	code, err := l.source.Fetch(l.ctx, path)
	status := loadStatus(err)
	timer.Stop(status)
	l.metrics.RecordModuleLoad(ModeDirect, status)
	done(code, err)
}

func (l *DirectLoader) Deliver(path, _ string, _ error) error {
	return &ProtocolError{Op: "deliver", Path: path, Reason: "delivery to a direct loader"}
}

func (l *DirectLoader) Shed()        {}
func (l *DirectLoader) Close()       {}
func (l *DirectLoader) Pending() int { return 0 }

func loadStatus(err error) string {
	switch {
	case err == nil:
		return monitoring.StatusOK
	case errors.Is(err, modules.ErrNotFound):
		return "not_found"
	default:
		return monitoring.StatusError
	}
}
