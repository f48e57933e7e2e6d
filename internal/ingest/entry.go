package ingest

import (
	"context"
	"errors"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"

	"github.com/GriffinCanCode/kothrunner/internal/domain/match"
	"github.com/GriffinCanCode/kothrunner/internal/shared/utils"
)

// ErrNoEntries is returned when a source yields nothing playable.
var ErrNoEntries = errors.New("ingest: no entries found")

// Loader yields the entries of one source.
type Loader interface {
	Load(ctx context.Context) ([]match.Entry, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) ([]match.Entry, error)

func (f LoaderFunc) Load(ctx context.Context) ([]match.Entry, error) {
	return f(ctx)
}

var titlePolicy = bluemonday.StrictPolicy()

// CleanTitle strips markup, collapses whitespace and normalizes to NFC.
func CleanTitle(s string) string {
	s = html.UnescapeString(titlePolicy.Sanitize(s))
	s = strings.Join(strings.Fields(s), " ")
	return norm.NFC.String(s)
}

// Prepare cleans and validates entries supplied directly by a caller. The
// input slice is not modified.
func Prepare(entries []match.Entry) ([]match.Entry, error) {
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}
	return finish(append([]match.Entry(nil), entries...))
}

// finish fills derived fields and validates the result.
func finish(entries []match.Entry) ([]match.Entry, error) {
	fields := make([]utils.EntryFields, len(entries))
	for i := range entries {
		e := &entries[i]
		e.Title = CleanTitle(e.Title)
		if e.Title == "" {
			e.Title = e.ID
		}
		e.Fingerprint = utils.Fingerprint(e.Code)
		fields[i] = utils.EntryFields{ID: e.ID, Title: e.Title, Team: e.Team, Code: e.Code}
	}
	if err := utils.ValidateEntries(fields); err != nil {
		return nil, err
	}
	return entries, nil
}
