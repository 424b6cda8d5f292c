// Package sites maps product URLs to extraction strategies.
package sites

import (
	"fmt"
	"regexp"
)

// Definition describes one supported site.
type Definition struct {
	// Name is the site label reported in logs and metrics.
	Name string
	// Strategy is the registry key of the extractor serving this site.
	Strategy string
	// Patterns are matched case-insensitively anywhere in the URL.
	Patterns []*regexp.Regexp
}

// Define compiles a Definition from raw patterns.
func Define(name, strategy string, patterns ...string) (Definition, error) {
	if name == "" || strategy == "" {
		return Definition{}, fmt.Errorf("site name and strategy are required")
	}
	if len(patterns) == 0 {
		return Definition{}, fmt.Errorf("site %s: at least one pattern is required", name)
	}
	def := Definition{Name: name, Strategy: strategy}
	for _, raw := range patterns {
		re, err := regexp.Compile("(?i)" + raw)
		if err != nil {
			return Definition{}, fmt.Errorf("site %s: compile pattern %q: %w", name, raw, err)
		}
		def.Patterns = append(def.Patterns, re)
	}
	return def, nil
}

// MustDefine is Define for static tables; it panics on a bad pattern.
func MustDefine(name, strategy string, patterns ...string) Definition {
	def, err := Define(name, strategy, patterns...)
	if err != nil {
		panic(err)
	}
	return def
}

// Matches reports whether any pattern occurs in rawURL.
func (d Definition) Matches(rawURL string) bool {
	for _, re := range d.Patterns {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// Router resolves URLs against an ordered, immutable site table.
type Router struct {
	defs []Definition
}

// NewRouter builds a Router. Table order decides ambiguous matches.
func NewRouter(defs []Definition) *Router {
	return &Router{defs: append([]Definition(nil), defs...)}
}

// Route returns the first definition matching rawURL. A miss is an
// ordinary outcome for unconfigured sites.
func (r *Router) Route(rawURL string) (Definition, bool) {
	if rawURL == "" {
		return Definition{}, false
	}
	for _, def := range r.defs {
		if def.Matches(rawURL) {
			return def, true
		}
	}
	return Definition{}, false
}

// Definitions returns a copy of the routing table.
func (r *Router) Definitions() []Definition {
	return append([]Definition(nil), r.defs...)
}
