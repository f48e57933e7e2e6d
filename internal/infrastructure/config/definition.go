package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// ErrMissingGameType is returned when a definition names no game.
var ErrMissingGameType = errors.New("config: definition has no gameType")

// Definition describes one tournament.
type Definition struct {
	Name     string `json:"name" yaml:"name" toml:"name"`
	GameType string `json:"gameType" yaml:"gameType" toml:"gameType"`

	TeamType       string                 `json:"teamType" yaml:"teamType" toml:"teamType"`
	TeamArgs       map[string]interface{} `json:"teamTypeArgs" yaml:"teamTypeArgs" toml:"teamTypeArgs"`
	TournamentType string                 `json:"tournamentType" yaml:"tournamentType" toml:"tournamentType"`
	TournamentArgs map[string]interface{} `json:"tournamentTypeArgs" yaml:"tournamentTypeArgs" toml:"tournamentTypeArgs"`
	MatchType      string                 `json:"matchType" yaml:"matchType" toml:"matchType"`
	MatchArgs      map[string]interface{} `json:"matchTypeArgs" yaml:"matchTypeArgs" toml:"matchTypeArgs"`

	GameConfig       map[string]interface{} `json:"gameConfig" yaml:"gameConfig" toml:"gameConfig"`
	PlayConfig       map[string]interface{} `json:"playConfig" yaml:"playConfig" toml:"playConfig"`
	PlayHiddenConfig PlayHiddenConfig       `json:"playHiddenConfig" yaml:"playHiddenConfig" toml:"playHiddenConfig"`

	MaxConcurrency int `json:"maxConcurrency" yaml:"maxConcurrency" toml:"maxConcurrency"`

	// Question site and id locate the answers page entries are read from.
	Site        string `json:"site" yaml:"site" toml:"site"`
	QID         string `json:"qid" yaml:"qid" toml:"qid"`
	QuestionURL string `json:"questionURL" yaml:"questionURL" toml:"questionURL"`
}

// PlayHiddenConfig holds play settings hidden from the contestants.
type PlayHiddenConfig struct {
	Speed   int `json:"speed" yaml:"speed" toml:"speed"`
	MaxTime int `json:"maxTime" yaml:"maxTime" toml:"maxTime"`
}

// NewDefinition returns a definition populated with defaults.
func NewDefinition() *Definition {
	return &Definition{
		TeamType:         "free_for_all",
		TeamArgs:         map[string]interface{}{},
		TournamentType:   "brawl",
		TournamentArgs:   map[string]interface{}{},
		MatchType:        "brawl",
		MatchArgs:        map[string]interface{}{},
		GameConfig:       map[string]interface{}{},
		PlayConfig:       map[string]interface{}{},
		PlayHiddenConfig: PlayHiddenConfig{Speed: -1, MaxTime: 250},
	}
}

// LoadDefinition reads a definition file. The format follows the extension:
// .yaml/.yml, .toml or .json.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	return ParseDefinition(data, filepath.Ext(path))
}

// ParseDefinition decodes a definition in the format named by ext.
func ParseDefinition(data []byte, ext string) (*Definition, error) {
	def := NewDefinition()

	var err error
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, def)
	case "toml":
		err = toml.Unmarshal(data, def)
	case "json", "":
		err = sonic.Unmarshal(data, def)
	default:
		return nil, fmt.Errorf("config: unsupported definition format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}

	def.normalize()
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// Validate checks the fields every tournament needs. Node and team builder
// arguments are validated by their constructors.
func (d *Definition) Validate() error {
	if d.GameType == "" {
		return ErrMissingGameType
	}
	if d.MaxConcurrency < 0 {
		return fmt.Errorf("config: maxConcurrency must not be negative, got %d", d.MaxConcurrency)
	}
	return nil
}

// Concurrency returns the definition's ceiling. A definition may lower the
// process ceiling but never raise it; zero selects the ceiling itself.
func (d *Definition) Concurrency(ceiling int) int {
	if d.MaxConcurrency > 0 && d.MaxConcurrency < ceiling {
		return d.MaxConcurrency
	}
	return ceiling
}

// AnswersURL returns the page entries are read from, or "".
func (d *Definition) AnswersURL() string {
	if d.QuestionURL != "" {
		return d.QuestionURL
	}
	if d.Site != "" && d.QID != "" {
		return "https://" + d.Site + ".stackexchange.com/questions/" + d.QID
	}
	return ""
}

func (d *Definition) normalize() {
	if d.TeamType == "" {
		d.TeamType = "free_for_all"
	}
	if d.TournamentType == "" {
		d.TournamentType = "brawl"
	}
	if d.MatchType == "" {
		d.MatchType = "brawl"
	}
	for _, m := range []*map[string]interface{}{&d.TeamArgs, &d.TournamentArgs, &d.MatchArgs, &d.GameConfig, &d.PlayConfig} {
		if *m == nil {
			*m = map[string]interface{}{}
		}
	}
}
