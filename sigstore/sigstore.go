// Package sigstore composes the per-kind matcher sets (sigset.ShaSet and
// sigset.HeurSet) into the single signature store a scan pipeline and
// event loop dispatch against, and loads/serializes that composition from
// a compiled rule directory or a bundle file.
package sigstore

import (
	"io"

	"github.com/radkum/redr/bundle"
	"github.com/radkum/redr/digest"
	"github.com/radkum/redr/peimport"
	"github.com/radkum/redr/rule"
	"github.com/radkum/redr/sigset"
)

// fileEvaluator is satisfied by both sigset.ShaSet and a HeurSet bound to
// an import extractor, letting Store.EvalFile try either kind uniformly.
type fileEvaluator interface {
	EvalFile(r io.Reader) (rule.Rule, bool, error)
}

type heurFileAdapter struct {
	set     *sigset.HeurSet
	extract func(io.Reader) ([]digest.Sha256Buf, error)
}

func (a heurFileAdapter) EvalFile(r io.Reader) (rule.Rule, bool, error) {
	return a.set.EvalFile(r, a.extract)
}

// Store is the composed signature set: up to two file-evaluated sets (Sha,
// then Imports), one sandbox set (Calls), and one behavioral set (Event).
type Store struct {
	fileSets   []fileEvaluator
	sandbox    *sigset.HeurSet
	behavioral *sigset.HeurSet
}

// EvalFile tries each file-evaluated set in insertion order, seeking r
// back to the start between attempts, and returns the first match.
func (s *Store) EvalFile(r io.ReadSeeker) (rule.Rule, bool, error) {
	for _, fs := range s.fileSets {
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return rule.Rule{}, false, err
		}
		matched, ok, err := fs.EvalFile(r)
		if err != nil {
			return rule.Rule{}, false, err
		}
		if ok {
			return matched, true, nil
		}
	}
	return rule.Rule{}, false, nil
}

// EvalSandbox consults the Calls set against a sandboxed run's observed
// API-call hashes.
func (s *Store) EvalSandbox(hashes []digest.Sha256Buf) (rule.Rule, bool) {
	if s.sandbox == nil {
		return rule.Rule{}, false
	}
	return s.sandbox.EvalHashes(hashes)
}

// EvalEvents consults the Event set against observed behavioral attribute
// hashes.
func (s *Store) EvalEvents(hashes []digest.Sha256Buf) (rule.Rule, bool) {
	if s.behavioral == nil {
		return rule.Rule{}, false
	}
	return s.behavioral.EvalHashes(hashes)
}

// RuleCount reports the total number of rules the store holds, across all
// of its sets.
func (s *Store) RuleCount() int {
	n := 0
	for _, fs := range s.fileSets {
		switch set := fs.(type) {
		case *sigset.ShaSet:
			n += set.Len()
		case heurFileAdapter:
			n += set.set.Len()
		}
	}
	if s.sandbox != nil {
		n += s.sandbox.Len()
	}
	if s.behavioral != nil {
		n += s.behavioral.Len()
	}
	return n
}

// LoadFromDir compiles every rule file under dir and composes them into a
// Store.
func LoadFromDir(dir string) (*Store, error) {
	rules, err := rule.CompileDir(dir)
	if err != nil {
		return nil, err
	}
	return build(rules)
}

func build(rules []rule.Rule) (*Store, error) {
	shaSet := sigset.NewShaSet()
	importsSet := sigset.NewHeurSet(rule.KindImports)
	callsSet := sigset.NewHeurSet(rule.KindCalls)
	eventSet := sigset.NewHeurSet(rule.KindEvent)

	for _, r := range rules {
		var err error
		switch r.Body.Kind {
		case rule.KindSha:
			err = shaSet.AppendRule(r)
		case rule.KindImports:
			err = importsSet.AppendRule(r)
		case rule.KindCalls:
			err = callsSet.AppendRule(r)
		case rule.KindEvent:
			err = eventSet.AppendRule(r)
		}
		if err != nil {
			return nil, err
		}
	}

	store := &Store{}
	if shaSet.Len() > 0 {
		store.fileSets = append(store.fileSets, shaSet)
	}
	if importsSet.Len() > 0 {
		store.fileSets = append(store.fileSets, heurFileAdapter{set: importsSet, extract: peimport.Extract})
	}
	if callsSet.Len() > 0 {
		store.sandbox = callsSet
	}
	if eventSet.Len() > 0 {
		store.behavioral = eventSet
	}
	return store, nil
}

// Serialize writes the store as a bundle, in the canonical section order
// Sha, Imports, Calls, Event. Empty sets are omitted.
func (s *Store) Serialize(w io.Writer) error {
	var sets []bundle.Set
	for _, fs := range s.fileSets {
		switch set := fs.(type) {
		case *sigset.ShaSet:
			sets = append(sets, bundle.Set{Magic: bundle.MagicSha, Rules: ruleSlice(set.Hashes(), set)})
		case heurFileAdapter:
			sets = append(sets, bundle.Set{Magic: bundle.MagicHeur, Rules: set.set.Rules()})
		}
	}
	if s.sandbox != nil {
		sets = append(sets, bundle.Set{Magic: bundle.MagicDynamic, Rules: s.sandbox.Rules()})
	}
	if s.behavioral != nil {
		sets = append(sets, bundle.Set{Magic: bundle.MagicBehav, Rules: s.behavioral.Rules()})
	}
	return bundle.WriteBundle(w, sets)
}

func ruleSlice(hashes []digest.Sha256Buf, set *sigset.ShaSet) []rule.Rule {
	out := make([]rule.Rule, 0, len(hashes))
	for _, h := range hashes {
		r, ok := set.Rule(h)
		if ok {
			out = append(out, r)
		}
	}
	return out
}

// LoadFromBundle decodes a bundle and composes its sections into a Store.
// Sha and Imports sets are placed in the file-set dispatch order required
// by EvalFile regardless of the physical order the sections appear in.
func LoadFromBundle(r io.Reader) (*Store, error) {
	sets, err := bundle.ReadBundle(r)
	if err != nil {
		return nil, err
	}

	store := &Store{}
	var importsSection *bundle.Set

	for i := range sets {
		sec := &sets[i]
		switch sec.Magic {
		case bundle.MagicSha:
			shaSet := sigset.NewShaSet()
			for _, rl := range sec.Rules {
				if err := shaSet.AppendRule(rl); err != nil {
					return nil, err
				}
			}
			store.fileSets = append(store.fileSets, shaSet)
		case bundle.MagicHeur:
			importsSection = sec
		case bundle.MagicDynamic:
			hs := sigset.NewHeurSet(rule.KindCalls)
			for _, rl := range sec.Rules {
				if err := hs.AppendRule(rl); err != nil {
					return nil, err
				}
			}
			store.sandbox = hs
		case bundle.MagicBehav:
			hs := sigset.NewHeurSet(rule.KindEvent)
			for _, rl := range sec.Rules {
				if err := hs.AppendRule(rl); err != nil {
					return nil, err
				}
			}
			store.behavioral = hs
		default:
			return nil, bundle.ErrUnknownMagic{Magic: sec.Magic}
		}
	}

	if importsSection != nil {
		hs := sigset.NewHeurSet(rule.KindImports)
		for _, rl := range importsSection.Rules {
			if err := hs.AppendRule(rl); err != nil {
				return nil, err
			}
		}
		store.fileSets = append(store.fileSets, heurFileAdapter{set: hs, extract: peimport.Extract})
	}

	return store, nil
}
