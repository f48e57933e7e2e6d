package ingest

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/saintfish/chardet"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/GriffinCanCode/kothrunner/internal/domain/match"
	"github.com/GriffinCanCode/kothrunner/internal/infrastructure/httpclient"
)

// PageLoader reads entries from the answers of a question page. Each
// ".answer" block with a code sample becomes one entry: the id comes from
// data-answerid, the title from the first h1-h3 and the code from the
// first "pre code". Answers without code are loaded disabled. A
// data-team attribute sets the entry's team.
type PageLoader struct {
	url    string
	client *httpclient.Client
	logger *zap.Logger
}

// NewPageLoader creates a loader for the page at url.
func NewPageLoader(url string, client *httpclient.Client, logger *zap.Logger) *PageLoader {
	if client == nil {
		client = httpclient.New(httpclient.DefaultOptions())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageLoader{url: url, client: client, logger: logger}
}

func (p *PageLoader) Load(ctx context.Context) ([]match.Entry, error) {
	body, err := p.client.Get(ctx, p.url)
	if err != nil {
		return nil, fmt.Errorf("fetch answers page: %w", err)
	}
	entries, err := ParseAnswers(body)
	if err != nil {
		return nil, err
	}
	p.logger.Info("Loaded entries from page",
		zap.String("url", p.url),
		zap.Int("entries", len(entries)))
	return entries, nil
}

// ParseAnswers extracts entries from an answers page.
func ParseAnswers(page []byte) ([]match.Entry, error) {
	doc, err := loadHTML(page)
	if err != nil {
		return nil, fmt.Errorf("parse answers page: %w", err)
	}

	var entries []match.Entry
	doc.Find(".answer").Each(func(i int, s *goquery.Selection) {
		id, ok := s.Attr("data-answerid")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return
		}

		title := s.Find("h1, h2, h3").First()
		titleHTML, _ := title.Html()
		code := s.Find("pre code").First()

		team, _ := s.Attr("data-team")
		entries = append(entries, match.Entry{
			ID:      id,
			Title:   titleHTML,
			Code:    code.Text(),
			Team:    strings.TrimSpace(team),
			Enabled: code.Length() > 0 && strings.TrimSpace(code.Text()) != "",
		})
	})
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return finish(entries)
}

// loadHTML parses page after converting it to UTF-8. Valid UTF-8 is
// taken as is; anything else goes through charset detection.
func loadHTML(page []byte) (*goquery.Document, error) {
	if utf8.Valid(page) {
		return goquery.NewDocumentFromReader(bytes.NewReader(page))
	}
	name := "windows-1252"
	if result, err := chardet.NewHtmlDetector().DetectBest(page); err == nil && result != nil {
		name = strings.ToLower(result.Charset)
	}
	r, err := charset.NewReaderLabel(name, bytes.NewReader(page))
	if err != nil {
		return goquery.NewDocumentFromReader(bytes.NewReader(page))
	}
	return goquery.NewDocumentFromReader(r)
}
