package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/GriffinCanCode/kothrunner/internal/domain/match"
)

// DefaultPattern selects program files under the root.
const DefaultPattern = "**/*.js"

// DirLoader reads one entry per file. The id is the slash-separated path
// without extension and the team is the first directory, if any. Files
// whose name starts with "_" are loaded disabled. The title is taken from a
// leading "// title:" comment, or the file name.
type DirLoader struct {
	root    string
	pattern string
	logger  *zap.Logger
}

// NewDirLoader creates a loader for root. An empty pattern means
// DefaultPattern.
func NewDirLoader(root, pattern string, logger *zap.Logger) (*DirLoader, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("ingest: invalid pattern %q", pattern)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirLoader{root: root, pattern: pattern, logger: logger}, nil
}

func (d *DirLoader) Load(ctx context.Context) ([]match.Entry, error) {
	var (
		mu      sync.Mutex
		entries []match.Entry
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, d.root, func(p string, de os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return err
		}
		if de.IsDir() {
			if p != d.root && strings.HasPrefix(de.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if ok, _ := doublestar.Match(d.pattern, rel); !ok {
			return nil
		}

		entry, err := d.read(p, rel)
		if err != nil {
			d.logger.Warn("Skipping entry file", zap.String("path", rel), zap.Error(err))
			return nil
		}
		mu.Lock()
		entries = append(entries, entry)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", d.root, err)
	}
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	d.logger.Info("Loaded entries from directory",
		zap.String("root", d.root),
		zap.Int("entries", len(entries)))
	return finish(entries)
}

func (d *DirLoader) read(p, rel string) (match.Entry, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return match.Entry{}, err
	}
	code, err := DecodeText(data)
	if err != nil {
		return match.Entry{}, err
	}

	id := strings.TrimSuffix(rel, path.Ext(rel))
	base := path.Base(id)
	entry := match.Entry{
		ID:      id,
		Title:   titleComment(code, strings.TrimPrefix(base, "_")),
		Code:    code,
		Enabled: !strings.HasPrefix(base, "_"),
	}
	if dir := path.Dir(id); dir != "." {
		entry.Team = strings.SplitN(dir, "/", 2)[0]
	}
	return entry, nil
}

// DecodeText returns data as UTF-8 text. Binary content is rejected; other
// encodings are detected and converted.
func DecodeText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	mt := mimetype.Detect(data)
	if !isText(mt) {
		return "", fmt.Errorf("not a text file (%s)", mt.String())
	}

	if utf8.Valid(data) {
		return string(bytes.TrimPrefix(data, utf8BOM)), nil
	}

	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result == nil {
		return "", fmt.Errorf("unknown text encoding")
	}
	name := strings.ToLower(result.Charset)

	enc, _ := charset.Lookup(name)
	if enc == nil {
		return "", fmt.Errorf("unsupported text encoding %s", name)
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", name, err)
	}
	return string(bytes.TrimPrefix(out, utf8BOM)), nil
}

func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "text/") {
			return true
		}
	}
	return false
}

var utf8BOM = []byte("\xef\xbb\xbf")

// titleComment returns the text of a "// title:" line among the first
// lines of code, or fallback.
func titleComment(code, fallback string) string {
	lines := strings.SplitN(code, "\n", 6)
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if rest, ok := strings.CutPrefix(l, "//"); ok {
			rest = strings.TrimSpace(rest)
			if len(rest) > 6 && strings.EqualFold(rest[:6], "title:") {
				return strings.TrimSpace(rest[6:])
			}
		}
	}
	return fallback
}
