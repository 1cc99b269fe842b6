package parse

import (
	"go.uber.org/zap"

	"storysync/internal/story"
)

// Registry selects a parser variant for a source document. Variants are
// consulted in registration order; when none claims the source, the
// fallback (markdown) is used.
type Registry struct {
	parsers  []Parser
	fallback Parser
	log      *zap.SugaredLogger
}

// NewRegistry returns an empty registry. A nil logger disables logging.
func NewRegistry(log *zap.SugaredLogger) *Registry {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Registry{log: log}
}

// NewDefaultRegistry returns a registry with the markdown, YAML, and
// JSON variants registered, falling back to markdown.
func NewDefaultRegistry(log *zap.SugaredLogger) *Registry {
	reg := NewRegistry(log)
	md := NewMarkdownParser(log)

	reg.Register(md)
	reg.Register(NewYAMLParser(log))
	reg.Register(NewJSONParser(log))
	reg.fallback = md

	return reg
}

// Register appends a variant. The first registered variant also becomes
// the fallback unless one was set already.
func (r *Registry) Register(p Parser) {
	r.parsers = append(r.parsers, p)

	if r.fallback == nil {
		r.fallback = p
	}
}

// Select returns the first variant claiming the source.
func (r *Registry) Select(source string) Parser {
	for _, p := range r.parsers {
		if p.CanParse(source) {
			return p
		}
	}

	r.log.Debugw("no parser claimed source, using fallback",
		"fallback", r.fallback.Name())

	return r.fallback
}

// Parse parses with the selected variant.
func (r *Registry) Parse(source string) (Result, error) {
	return r.Select(source).Parse(source)
}

// ParseStories parses with the selected variant.
func (r *Registry) ParseStories(source string) ([]story.UserStory, error) {
	return r.Select(source).ParseStories(source)
}

// Validate validates with the selected variant.
func (r *Registry) Validate(source string) []string {
	return r.Select(source).Validate(source)
}
