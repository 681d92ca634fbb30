package sigset

import (
	"fmt"
	"io"
	"math/bits"

	"github.com/radkum/redr/digest"
	"github.com/radkum/redr/rule"
)

// MaxRules is the bitmap width: a HeurSet can hold at most this many rules,
// one per bit of the uint32 mask the matcher computes over.
const MaxRules = 32

// ErrTooManySignatures is returned by AppendRule once a set already holds
// MaxRules rules.
type ErrTooManySignatures struct {
	Limit int
}

func (e ErrTooManySignatures) Error() string {
	return fmt.Sprintf("sigset: heuristic set already holds the maximum of %d rules", e.Limit)
}

// HeurSet finds, among up to MaxRules rules each requiring a set of
// predicate hashes, the lowest-id rule whose every predicate is present in
// an observed hash list. It backs the Imports (file-evaluated), Calls
// (sandbox) and Event (behavioral) bodies alike; only the source of the
// observed hash list differs between them.
type HeurSet struct {
	predToIdx  map[digest.Sha256Buf]uint32
	requiredBy []uint32
	rules      []rule.Rule
	wantKind   rule.Kind
}

// NewHeurSet returns an empty set that only accepts rules of kind.
func NewHeurSet(kind rule.Kind) *HeurSet {
	return &HeurSet{
		predToIdx: make(map[digest.Sha256Buf]uint32),
		wantKind:  kind,
	}
}

// Len reports the number of rules held.
func (h *HeurSet) Len() int { return len(h.rules) }

// Rules returns the rules in insertion (bit-index) order, for serialization.
func (h *HeurSet) Rules() []rule.Rule {
	out := make([]rule.Rule, len(h.rules))
	copy(out, h.rules)
	return out
}

// AppendRule indexes every predicate hash in r.Body.Hashes against r's new
// bit position, which is its insertion order.
func (h *HeurSet) AppendRule(r rule.Rule) error {
	if r.Body.Kind != h.wantKind {
		return ErrWrongKind{Want: h.wantKind.String(), Got: r.Body.Kind}
	}
	if len(h.rules) >= MaxRules {
		return ErrTooManySignatures{Limit: MaxRules}
	}

	sigID := uint32(len(h.rules))
	bit := uint32(1) << sigID

	for _, pred := range r.Body.Hashes {
		idx, known := h.predToIdx[pred]
		if !known {
			idx = uint32(len(h.requiredBy))
			h.predToIdx[pred] = idx
			h.requiredBy = append(h.requiredBy, 0)
		}
		h.requiredBy[idx] |= bit
	}

	h.rules = append(h.rules, r)
	return nil
}

// EvalHashes clears the bit for every rule whose predicate appears in
// observed, then returns the lowest-bit-index rule whose predicates have
// all been cleared.
func (h *HeurSet) EvalHashes(observed []digest.Sha256Buf) (rule.Rule, bool) {
	sigCount := len(h.rules)
	if sigCount == 0 {
		return rule.Rule{}, false
	}

	remaining := make([]uint32, len(h.requiredBy))
	copy(remaining, h.requiredBy)

	for _, sha := range observed {
		idx, known := h.predToIdx[sha]
		if !known {
			continue
		}
		remaining[idx] = 0
	}

	var stillUnmet uint32
	for _, r := range remaining {
		stillUnmet |= r
	}

	mask := uint32(1)<<uint(sigCount) - 1
	hit := ^stillUnmet & mask
	if hit == 0 {
		return rule.Rule{}, false
	}

	matchedID := bits.TrailingZeros32(hit)
	return h.rules[matchedID], true
}

// EvalFile extracts predicate hashes from file via extract, then evaluates
// them the same way EvalHashes does. A soft-failing extractor (one that
// returns a nil/empty hash list instead of an error for non-matching input)
// simply yields no match, never an evaluation error.
func (h *HeurSet) EvalFile(file io.Reader, extract func(io.Reader) ([]digest.Sha256Buf, error)) (rule.Rule, bool, error) {
	hashes, err := extract(file)
	if err != nil {
		return rule.Rule{}, false, err
	}
	r, ok := h.EvalHashes(hashes)
	return r, ok, nil
}
