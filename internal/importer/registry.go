package importer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DefaultFormat is the statement format used when none is named.
const DefaultFormat = "generic"

// ErrUnknownFormat is returned by Lookup for an unregistered format.
var ErrUnknownFormat = errors.New("unknown import format")

// Registry maps statement format names to parsers. Names are case-insensitive.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser. Panics on duplicate format.
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
}

// Lookup returns the parser for format, or for DefaultFormat when format is
// blank.
func (r *Registry) Lookup(format string) (Parser, error) {
	key := strings.ToLower(strings.TrimSpace(format))
	if key == "" {
		key = DefaultFormat
	}
	p, ok := r.parsers[key]
	if !ok {
		return nil, fmt.Errorf("%w %q (one of %s)", ErrUnknownFormat, format, strings.Join(r.Formats(), ", "))
	}
	return p, nil
}

// Formats lists the registered format names in sorted order.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.parsers))
	for k := range r.parsers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry returns a registry with the generic and chase parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&GenericParser{})
	r.Register(&ChaseParser{})
	return r
}
