// Package sigset implements the two matcher shapes a signature bundle set
// can use: an exact-hash lookup table (ShaSet) and a bitmap-indexed
// multi-predicate matcher (HeurSet).
package sigset

import (
	"fmt"
	"io"

	"github.com/radkum/redr/digest"
	"github.com/radkum/redr/rule"
)

// ErrWrongKind is returned when AppendRule is handed a rule whose body kind
// doesn't belong in the target set.
type ErrWrongKind struct {
	Want string
	Got  rule.Kind
}

func (e ErrWrongKind) Error() string {
	return fmt.Sprintf("sigset: expected a %s rule, got %s", e.Want, e.Got)
}

// ShaSet is an ordered set of exact file-content hashes. Eval = hash the
// candidate, probe the set, return the associated rule on hit.
type ShaSet struct {
	order     []digest.Sha256Buf
	shaToRule map[digest.Sha256Buf]rule.Rule
}

// NewShaSet returns an empty set.
func NewShaSet() *ShaSet {
	return &ShaSet{shaToRule: make(map[digest.Sha256Buf]rule.Rule)}
}

// AppendRule inserts r, which must carry a Sha body.
func (s *ShaSet) AppendRule(r rule.Rule) error {
	if r.Body.Kind != rule.KindSha {
		return ErrWrongKind{Want: "sha256", Got: r.Body.Kind}
	}
	if _, exists := s.shaToRule[r.Body.Sha]; !exists {
		s.order = append(s.order, r.Body.Sha)
	}
	s.shaToRule[r.Body.Sha] = r
	return nil
}

// Len reports the number of distinct hashes held.
func (s *ShaSet) Len() int { return len(s.order) }

// Hashes returns the set's content hashes in insertion order, for
// serialization.
func (s *ShaSet) Hashes() []digest.Sha256Buf {
	out := make([]digest.Sha256Buf, len(s.order))
	copy(out, s.order)
	return out
}

// Rule returns the rule associated with sha, if present.
func (s *ShaSet) Rule(sha digest.Sha256Buf) (rule.Rule, bool) {
	r, ok := s.shaToRule[sha]
	return r, ok
}

// EvalFile hashes the full content of r and probes the set.
func (s *ShaSet) EvalFile(r io.Reader) (rule.Rule, bool, error) {
	sha, err := digest.FromReader(r)
	if err != nil {
		return rule.Rule{}, false, err
	}
	matched, ok := s.shaToRule[sha]
	return matched, ok, nil
}

// EvalHashes treats the last element of hashes as the candidate to probe.
// This is a defined contract used when a sandbox run is reduced to a single
// terminal hash: an empty list is simply a non-match, not an error.
func (s *ShaSet) EvalHashes(hashes []digest.Sha256Buf) (rule.Rule, bool) {
	if len(hashes) == 0 {
		return rule.Rule{}, false
	}
	candidate := hashes[len(hashes)-1]
	matched, ok := s.shaToRule[candidate]
	return matched, ok
}
