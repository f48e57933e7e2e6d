package config

import (
	"fmt"
	"io"
	"strconv"

	"github.com/antchfx/htmlquery"
	"github.com/bytedance/sonic"
	"golang.org/x/net/html"
)

// ParsePageMeta builds a definition from the <meta name=... content=...>
// tags of a game page, the format hosted games are published in.
func ParsePageMeta(r io.Reader) (*Definition, error) {
	doc, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	def := NewDefinition()
	if title := htmlquery.FindOne(doc, "//title"); title != nil {
		def.Name = htmlquery.InnerText(title)
	}

	strs := map[string]*string{
		"game-type":                   &def.GameType,
		"team-type":                   &def.TeamType,
		"tournament-type":             &def.TournamentType,
		"match-type":                  &def.MatchType,
		"stack-exchange-site":         &def.Site,
		"stack-exchange-qid":          &def.QID,
		"stack-exchange-question-url": &def.QuestionURL,
	}
	objs := map[string]interface{}{
		"team-type-args":       &def.TeamArgs,
		"tournament-type-args": &def.TournamentArgs,
		"match-type-args":      &def.MatchArgs,
		"game-config":          &def.GameConfig,
		"play-config":          &def.PlayConfig,
		"play-hidden-config":   &def.PlayHiddenConfig,
	}

	for name, dst := range strs {
		if v, ok := metaValue(doc, name); ok {
			*dst = v
		}
	}
	for name, dst := range objs {
		v, ok := metaValue(doc, name)
		if !ok {
			continue
		}
		if err := sonic.UnmarshalString(v, dst); err != nil {
			return nil, fmt.Errorf("meta %s: %w", name, err)
		}
	}
	if v, ok := metaValue(doc, "max-concurrency"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("meta max-concurrency: %w", err)
		}
		def.MaxConcurrency = n
	}

	def.normalize()
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func metaValue(doc *html.Node, name string) (string, bool) {
	node := htmlquery.FindOne(doc, fmt.Sprintf("//meta[@name=%q]", name))
	if node == nil {
		return "", false
	}
	for _, attr := range node.Attr {
		if attr.Key == "content" {
			return attr.Val, true
		}
	}
	return "", false
}
