package modules

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/config"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/httpclient"
)

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path  string
		valid bool
	}{
		{"games/fight", true},
		{"fight", true},
		{"lib/v2/util", true},
		{"", false},
		{"/etc/passwd", false},
		{"../secrets", false},
		{"games/../../x", false},
		{"games//fight", false},
		{"./games", false},
		{"games\\fight", false},
		{"games/", false},
	}

	for _, tt := range tests {
		err := ValidatePath(tt.path)
		if tt.valid {
			assert.NoError(t, err, tt.path)
		} else {
			assert.ErrorIs(t, err, ErrInvalidPath, tt.path)
		}
	}
}

func TestMapSource(t *testing.T) {
	src := NewMapSource(map[string]string{"games/fight": "code"})

	code, err := src.Fetch(context.Background(), "games/fight")
	require.NoError(t, err)
	assert.Equal(t, "code", code)

	_, err = src.Fetch(context.Background(), "games/missing")
	assert.ErrorIs(t, err, ErrNotFound)

	src.Set("games/missing", "now here")
	code, err = src.Fetch(context.Background(), "games/missing")
	require.NoError(t, err)
	assert.Equal(t, "now here", code)
}

func writeModule(t *testing.T, root, rel, code string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(code), 0o644))
}

func TestDirSource(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, "games/fight.js", "fight")
	writeModule(t, root, "games/lib/util.js", "util")
	writeModule(t, root, "private/key.js", "secret")

	src, err := NewDirSource(root, "games/**")
	require.NoError(t, err)

	code, err := src.Fetch(context.Background(), "games/fight")
	require.NoError(t, err)
	assert.Equal(t, "fight", code)

	code, err = src.Fetch(context.Background(), "games/lib/util")
	require.NoError(t, err)
	assert.Equal(t, "util", code)

	_, err = src.Fetch(context.Background(), "private/key")
	assert.ErrorIs(t, err, ErrNotAllowed)

	_, err = src.Fetch(context.Background(), "games/nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = src.Fetch(context.Background(), "games/../private/key")
	assert.ErrorIs(t, err, ErrInvalidPath)

	paths, err := src.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"games/fight", "games/lib/util"}, paths)
}

func TestDirSourceRejectsBadPattern(t *testing.T) {
	_, err := NewDirSource(t.TempDir(), "games/[")
	assert.Error(t, err)
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/static/games/fight.js" {
			w.Write([]byte("remote fight"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	opts := httpclient.DefaultOptions()
	opts.RetryMax = 0
	opts.Timeout = 2 * time.Second
	src := NewHTTPSource(srv.URL+"/static", httpclient.New(opts))

	code, err := src.Fetch(context.Background(), "games/fight")
	require.NoError(t, err)
	assert.Equal(t, "remote fight", code)

	_, err = src.Fetch(context.Background(), "games/other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChain(t *testing.T) {
	local := NewMapSource(map[string]string{"a": "local a"})
	remote := NewMapSource(map[string]string{"a": "remote a", "b": "remote b"})
	broken := SourceFunc(func(ctx context.Context, p string) (string, error) {
		return "", errors.New("host down")
	})

	chain := Chain{local, remote}
	code, err := chain.Fetch(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "local a", code)

	code, err = chain.Fetch(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "remote b", code)

	_, err = chain.Fetch(context.Background(), "c")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Chain{local, broken, remote}.Fetch(context.Background(), "b")
	assert.EqualError(t, err, "host down")
}

func TestCachedSourceSharesFetches(t *testing.T) {
	var calls int32
	gate := make(chan struct{})
	inner := SourceFunc(func(ctx context.Context, p string) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-gate
		return "code:" + p, nil
	})
	cached := NewCachedSource(inner)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code, err := cached.Fetch(context.Background(), "games/fight")
			assert.NoError(t, err)
			results[i] = code
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, "code:games/fight", r)
	}

	_, err := cached.Fetch(context.Background(), "games/fight")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, cached.Len())

	cached.Forget()
	assert.Equal(t, 0, cached.Len())
}

func TestCachedSourceDoesNotCacheFailures(t *testing.T) {
	var calls int32
	inner := SourceFunc(func(ctx context.Context, p string) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	})
	cached := NewCachedSource(inner)

	_, err := cached.Fetch(context.Background(), "m")
	assert.Error(t, err)

	code, err := cached.Fetch(context.Background(), "m")
	require.NoError(t, err)
	assert.Equal(t, "ok", code)
}

func TestFromConfig(t *testing.T) {
	root := t.TempDir()
	writeModule(t, root, "local.js", "module.exports = 'local'")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/remote.js" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("module.exports = 'remote'"))
	}))
	defer srv.Close()

	client := httpclient.New(httpclient.Options{Timeout: 2 * time.Second})
	src, err := FromConfig(config.ModulesConfig{Dir: root, URL: srv.URL, Allow: []string{"**"}}, client)
	require.NoError(t, err)

	code, err := src.Fetch(context.Background(), "local")
	require.NoError(t, err)
	assert.Equal(t, "module.exports = 'local'", code)

	code, err = src.Fetch(context.Background(), "remote")
	require.NoError(t, err)
	assert.Equal(t, "module.exports = 'remote'", code)

	_, err = src.Fetch(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = FromConfig(config.ModulesConfig{}, nil)
	assert.ErrorIs(t, err, ErrNoSource)

	_, err = FromConfig(config.ModulesConfig{Dir: root, Allow: []string{"[bad"}}, nil)
	assert.Error(t, err)
}
