// Package shard maps recipe names onto the backend that owns them.
//
// The map is a static partition of the letters a..z into inclusive ranges,
// one per backend. Exactly one backend is the fallback and also receives
// names whose first character is not an ASCII letter. A Map is built once
// from configuration and never changes afterwards.
package shard

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"recipeproxy/internal/models"
)

// Shard is one backend of the partition.
type Shard struct {
	Name     string
	Addr     string
	From     rune
	To       rune
	Fallback bool
}

// Range returns the upper-case letter range owned by the shard, e.g. "A-G".
func (s Shard) Range() string {
	return fmt.Sprintf("%c-%c", unicode.ToUpper(s.From), unicode.ToUpper(s.To))
}

// Contains reports whether the lower-case letter r falls in the shard range.
func (s Shard) Contains(r rune) bool {
	return r >= s.From && r <= s.To
}

// Map resolves recipe names to shards.
type Map struct {
	shards   []Shard
	byLetter [26]int
	fallback int
}

// NewMap builds a Map from the shards section of the configuration.
func NewMap(cfg models.ShardsConfig) (*Map, error) {
	shards := make([]Shard, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		from, err := parseLetter(b.From)
		if err != nil {
			return nil, fmt.Errorf("shard %s: from: %w", b.Name, err)
		}
		to, err := parseLetter(b.To)
		if err != nil {
			return nil, fmt.Errorf("shard %s: to: %w", b.Name, err)
		}
		shards = append(shards, Shard{
			Name:     b.Name,
			Addr:     b.Address(cfg.BaseURL),
			From:     from,
			To:       to,
			Fallback: b.Fallback,
		})
	}
	return New(shards)
}

// New checks that shards partition a..z with exactly one fallback and
// returns the resulting Map.
func New(shards []Shard) (*Map, error) {
	if len(shards) == 0 {
		return nil, errors.New("no shards configured")
	}

	m := &Map{
		shards:   append([]Shard(nil), shards...),
		fallback: -1,
	}
	for i := range m.byLetter {
		m.byLetter[i] = -1
	}

	for i, s := range m.shards {
		if s.Name == "" {
			return nil, fmt.Errorf("shard %d has no name", i+1)
		}
		if s.Addr == "" {
			return nil, fmt.Errorf("shard %s has no address", s.Name)
		}
		if s.From < 'a' || s.To > 'z' || s.From > s.To {
			return nil, fmt.Errorf("shard %s: invalid range %c-%c", s.Name, s.From, s.To)
		}
		for r := s.From; r <= s.To; r++ {
			if owner := m.byLetter[r-'a']; owner >= 0 {
				return nil, fmt.Errorf("letter %c assigned to both %s and %s", r, m.shards[owner].Name, s.Name)
			}
			m.byLetter[r-'a'] = i
		}
		if s.Fallback {
			if m.fallback >= 0 {
				return nil, fmt.Errorf("multiple fallback shards: %s and %s", m.shards[m.fallback].Name, s.Name)
			}
			m.fallback = i
		}
	}

	for i, owner := range m.byLetter {
		if owner < 0 {
			return nil, fmt.Errorf("letter %c is not assigned to any shard", 'a'+rune(i))
		}
	}
	if m.fallback < 0 {
		return nil, errors.New("no fallback shard configured")
	}

	return m, nil
}

// Resolve returns the shard that owns name. It is total: an empty name or
// one starting with anything other than an ASCII letter goes to the
// fallback shard.
func (m *Map) Resolve(name string) Shard {
	first, size := utf8.DecodeRuneInString(name)
	if size == 0 {
		return m.shards[m.fallback]
	}
	first = unicode.ToLower(first)
	if first >= 'a' && first <= 'z' {
		return m.shards[m.byLetter[first-'a']]
	}
	return m.shards[m.fallback]
}

// Shards returns the shards in configuration order.
func (m *Map) Shards() []Shard {
	return append([]Shard(nil), m.shards...)
}

// Fallback returns the shard receiving names outside a..z.
func (m *Map) Fallback() Shard {
	return m.shards[m.fallback]
}

// Rules returns the routing table keyed by letter range.
func (m *Map) Rules() map[string]string {
	rules := make(map[string]string, len(m.shards))
	for _, s := range m.shards {
		rules[s.Range()] = s.Addr
	}
	return rules
}

func parseLetter(v string) (rune, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if utf8.RuneCountInString(v) != 1 {
		return 0, fmt.Errorf("expected a single letter, got %q", v)
	}
	r, _ := utf8.DecodeRuneInString(v)
	if r < 'a' || r > 'z' {
		return 0, fmt.Errorf("expected a letter a-z, got %q", v)
	}
	return r, nil
}
