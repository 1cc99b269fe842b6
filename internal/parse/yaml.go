package parse

import (
	"fmt"
	"regexp"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"storysync/internal/story"
)

// yamlStoriesRe sniffs raw content for a top-level stories key.
//
//nolint:gochecknoglobals // compiled once
var yamlStoriesRe = regexp.MustCompile(`(?m)^stories:`)

// YAMLParser reads the structured document schema from YAML sources.
type YAMLParser struct {
	log *zap.SugaredLogger
}

// NewYAMLParser returns a YAML parser. A nil logger disables logging.
func NewYAMLParser(log *zap.SugaredLogger) *YAMLParser {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &YAMLParser{log: log}
}

// Name implements Parser.
func (p *YAMLParser) Name() string { return "yaml" }

// Extensions implements Parser.
func (p *YAMLParser) Extensions() []string { return []string{".yaml", ".yml"} }

// CanParse claims YAML files by extension and raw content by a
// top-level stories key.
func (p *YAMLParser) CanParse(source string) bool {
	if ext := sourceExt(source); ext != "" {
		return ext == ".yaml" || ext == ".yml"
	}

	content, readErr := readSource(source)
	if readErr != nil {
		return false
	}

	return yamlStoriesRe.MatchString(content)
}

// Parse implements Parser.
func (p *YAMLParser) Parse(source string) (Result, error) {
	content, readErr := readSource(source)
	if readErr != nil {
		return Result{}, readErr
	}

	var doc docFile
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedSource, err)
	}

	res := Result{Source: sourceLabel(source)}
	buildStories(doc, &res)

	p.log.Debugw("parsed yaml document",
		"source", res.Source,
		"stories", len(res.Stories),
		"warnings", len(res.Warnings))

	return res, nil
}

// ParseStories implements Parser.
func (p *YAMLParser) ParseStories(source string) ([]story.UserStory, error) {
	res, err := p.Parse(source)
	if err != nil {
		return nil, err
	}

	return res.Stories, nil
}

// Validate implements Parser.
func (p *YAMLParser) Validate(source string) []string {
	res, err := p.Parse(source)
	if err != nil {
		return []string{err.Error()}
	}

	return validateStories(res.Stories)
}
