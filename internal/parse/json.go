package parse

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tailscale/hujson"
	"go.uber.org/zap"

	"storysync/internal/story"
)

// JSONParser reads the structured document schema from JSON sources.
// Comments and trailing commas are tolerated, so hand-maintained
// documents do not need to be strict JSON.
type JSONParser struct {
	log *zap.SugaredLogger
}

// NewJSONParser returns a JSON parser. A nil logger disables logging.
func NewJSONParser(log *zap.SugaredLogger) *JSONParser {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &JSONParser{log: log}
}

// Name implements Parser.
func (p *JSONParser) Name() string { return "json" }

// Extensions implements Parser.
func (p *JSONParser) Extensions() []string { return []string{".json"} }

// CanParse claims JSON files by extension and raw content by a leading
// brace or bracket.
func (p *JSONParser) CanParse(source string) bool {
	if ext := sourceExt(source); ext != "" {
		return ext == ".json"
	}

	content, readErr := readSource(source)
	if readErr != nil {
		return false
	}

	trimmed := strings.TrimLeft(content, " \t\r\n")

	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

// Parse implements Parser.
func (p *JSONParser) Parse(source string) (Result, error) {
	content, readErr := readSource(source)
	if readErr != nil {
		return Result{}, readErr
	}

	std, err := hujson.Standardize([]byte(content))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedSource, err)
	}

	var doc docFile
	if err := json.Unmarshal(std, &doc); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedSource, err)
	}

	res := Result{Source: sourceLabel(source)}
	buildStories(doc, &res)

	p.log.Debugw("parsed json document",
		"source", res.Source,
		"stories", len(res.Stories),
		"warnings", len(res.Warnings))

	return res, nil
}

// ParseStories implements Parser.
func (p *JSONParser) ParseStories(source string) ([]story.UserStory, error) {
	res, err := p.Parse(source)
	if err != nil {
		return nil, err
	}

	return res.Stories, nil
}

// Validate implements Parser.
func (p *JSONParser) Validate(source string) []string {
	res, err := p.Parse(source)
	if err != nil {
		return []string{err.Error()}
	}

	return validateStories(res.Stories)
}
