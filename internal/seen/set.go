// Package seen remembers which alert identities were already surfaced to
// the user on a given calendar day.
package seen

import (
	"encoding/json"
	"sort"
)

type Set struct {
	keys map[string]struct{}
}

func NewSet(keys ...string) Set {
	s := Set{keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		s.keys[k] = struct{}{}
	}
	return s
}

func (s Set) Has(key string) bool {
	_, ok := s.keys[key]
	return ok
}

// Add reports whether key was not already present.
func (s *Set) Add(key string) bool {
	if s.keys == nil {
		s.keys = make(map[string]struct{})
	}
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

func (s Set) Len() int { return len(s.keys) }

func (s Set) Sorted() []string {
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// encodeSet writes the set as a JSON list, the layout every backend persists.
func encodeSet(s Set) (string, error) {
	data, err := json.Marshal(s.Sorted())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeSet(payload string) (Set, error) {
	var keys []string
	if err := json.Unmarshal([]byte(payload), &keys); err != nil {
		return Set{}, err
	}
	return NewSet(keys...), nil
}
