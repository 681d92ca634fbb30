// Package rule holds the in-memory signature model: a name, a description,
// and a body naming either an exact content hash or a list of predicate
// hashes a heuristic/behavioral matcher must see all of.
package rule

import (
	"fmt"

	"github.com/radkum/redr/digest"
)

// Kind identifies which of the four body shapes a Rule carries.
type Kind int

const (
	KindSha Kind = iota
	KindImports
	KindCalls
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindSha:
		return "sha256"
	case KindImports:
		return "imports"
	case KindCalls:
		return "calls"
	case KindEvent:
		return "event"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Body is the rule payload. For KindSha only Sha is meaningful; for the
// other three kinds, Hashes carries the ordered predicate list.
type Body struct {
	Kind   Kind
	Sha    digest.Sha256Buf
	Hashes []digest.Sha256Buf
}

// Rule is immutable once built: constructed by the compiler or by
// deserializing a bundle, then shared read-only for the life of the store.
type Rule struct {
	Name        string
	Description string
	Body        Body
}

// ErrEmptyHashList is returned at compile time when an Imports, Calls or
// Event body resolves to zero predicate hashes.
type ErrEmptyHashList struct {
	Kind Kind
	Name string
}

func (e ErrEmptyHashList) Error() string {
	return fmt.Sprintf("rule %q: %s body has no hashes", e.Name, e.Kind)
}

func newShaRule(name, description string, sha digest.Sha256Buf) Rule {
	return Rule{Name: name, Description: description, Body: Body{Kind: KindSha, Sha: sha}}
}

func newHashListRule(name, description string, kind Kind, hashes []digest.Sha256Buf) (Rule, error) {
	if len(hashes) == 0 {
		return Rule{}, ErrEmptyHashList{Kind: kind, Name: name}
	}
	return Rule{Name: name, Description: description, Body: Body{Kind: kind, Hashes: hashes}}, nil
}
