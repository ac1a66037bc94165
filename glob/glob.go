// Package glob matches stream paths against glob patterns.
package glob

import (
	"strings"

	"github.com/gobwas/glob"
)

// Separator separates the elements of a stream path.
const Separator = '/'

type Glob interface {
	Match(path string) bool
	Pattern() string
}

type globber struct {
	pattern string
	glob    glob.Glob
}

// Compile compiles a pattern where '*' doesn't cross path elements and '**' does.
func Compile(pattern string) (Glob, error) {
	g, err := glob.Compile(pattern, Separator)
	if err != nil {
		return nil, err
	}

	return &globber{pattern: pattern, glob: g}, nil
}

func MustCompile(pattern string) Glob {
	g, err := Compile(pattern)
	if err != nil {
		panic(err)
	}

	return g
}

func (g *globber) Match(path string) bool {
	return g.glob.Match(path)
}

func (g *globber) Pattern() string {
	return g.pattern
}

// Set is a list of patterns. A path matches the set if it matches any pattern.
type Set struct {
	globs []Glob
}

// NewSet compiles the patterns. Empty patterns are skipped.
func NewSet(patterns []string) (*Set, error) {
	s := &Set{}

	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if len(p) == 0 {
			continue
		}

		g, err := Compile(p)
		if err != nil {
			return nil, err
		}

		s.globs = append(s.globs, g)
	}

	return s, nil
}

func (s *Set) Match(path string) bool {
	for _, g := range s.globs {
		if g.Match(path) {
			return true
		}
	}

	return false
}

func (s *Set) Len() int {
	return len(s.globs)
}

// IsPattern returns whether the string contains any glob meta characters.
func IsPattern(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}
