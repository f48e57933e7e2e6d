package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
)

// Size limits (in bytes)
const (
	MaxJSONSize   = 4 * 1024 * 1024 // request bodies carrying entries
	MaxConfigSize = 64 * 1024       // gameConfig and playConfig
	MaxCodeSize   = 256 * 1024      // one entry's program
)

// String length limits
const (
	MaxIDLength    = 128
	MaxTitleLength = 256
	MaxEntryCount  = 1024
	MaxConfigDepth = 20
	MaxSubmatches  = 10000 // count of one node
)

var (
	// EntryIDPattern allows alphanumeric, dots, hyphens, underscores and
	// slashes (directory-derived ids are "team/name").
	EntryIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._/-]+$`)
)

// EntryFields is what validation needs to know about an entry.
type EntryFields struct {
	ID    string
	Title string
	Team  string
	Code  string
}

// JSONSizeValidator validates JSON size limits
type JSONSizeValidator struct {
	maxSize int
}

// NewJSONSizeValidator creates a new validator with the specified max size
func NewJSONSizeValidator(maxSize int) *JSONSizeValidator {
	return &JSONSizeValidator{maxSize: maxSize}
}

// DefaultJSONValidator returns a validator with the default limit
func DefaultJSONValidator() *JSONSizeValidator {
	return NewJSONSizeValidator(MaxJSONSize)
}

// ValidateSize checks if the data size is within limits
func (v *JSONSizeValidator) ValidateSize(data []byte) error {
	if size := len(data); size > v.maxSize {
		return fmt.Errorf("JSON size %d bytes exceeds maximum %d bytes", size, v.maxSize)
	}
	return nil
}

// ValidateJSON validates both size and JSON structure
func (v *JSONSizeValidator) ValidateJSON(data []byte) error {
	if err := v.ValidateSize(data); err != nil {
		return err
	}
	if !sonic.Valid(data) {
		return fmt.Errorf("invalid JSON")
	}
	return nil
}

// ValidateJSONDepth checks if JSON nesting depth is within limits
func ValidateJSONDepth(data interface{}, maxDepth int) error {
	return checkDepth(data, 0, maxDepth)
}

func checkDepth(data interface{}, currentDepth int, maxDepth int) error {
	if currentDepth > maxDepth {
		return fmt.Errorf("JSON nesting depth %d exceeds maximum %d", currentDepth, maxDepth)
	}

	switch v := data.(type) {
	case map[string]interface{}:
		for _, value := range v {
			if err := checkDepth(value, currentDepth+1, maxDepth); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, value := range v {
			if err := checkDepth(value, currentDepth+1, maxDepth); err != nil {
				return err
			}
		}
	}

	return nil
}

// ValidateConfig checks a free-form game or play config map for size and
// nesting depth before it is handed to a game module.
func ValidateConfig(cfg map[string]interface{}, fieldName string) error {
	data, err := sonic.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", fieldName, err)
	}
	if err := NewJSONSizeValidator(MaxConfigSize).ValidateSize(data); err != nil {
		return fmt.Errorf("%s: %w", fieldName, err)
	}
	if err := ValidateJSONDepth(map[string]interface{}(cfg), MaxConfigDepth); err != nil {
		return fmt.Errorf("%s: %w", fieldName, err)
	}
	return nil
}

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// ValidateID validates an entry or team id
func ValidateID(id, fieldName string, required bool) error {
	if err := ValidateString(id, fieldName, 1, MaxIDLength, required); err != nil {
		return err
	}

	if id != "" && !EntryIDPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (only alphanumeric, dots, slashes, hyphens, and underscores allowed)", fieldName)
	}

	return nil
}

// ValidateEntry validates one submitted entry
func ValidateEntry(e EntryFields) error {
	if err := ValidateID(e.ID, "id", true); err != nil {
		return err
	}
	if err := ValidateID(e.Team, "team", false); err != nil {
		return fmt.Errorf("entry %s: %w", e.ID, err)
	}
	if err := ValidateString(e.Title, "title", 0, MaxTitleLength, false); err != nil {
		return fmt.Errorf("entry %s: %w", e.ID, err)
	}
	if len(e.Code) > MaxCodeSize {
		return fmt.Errorf("entry %s: code size %d bytes exceeds maximum %d bytes", e.ID, len(e.Code), MaxCodeSize)
	}
	return nil
}

// ValidateEntries validates a list of entries and rejects duplicate ids
func ValidateEntries(entries []EntryFields) error {
	if len(entries) > MaxEntryCount {
		return fmt.Errorf("too many entries (maximum %d)", MaxEntryCount)
	}
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if err := ValidateEntry(e); err != nil {
			return err
		}
		if seen[e.ID] {
			return fmt.Errorf("duplicate entry id %s", e.ID)
		}
		seen[e.ID] = true
	}
	return nil
}
