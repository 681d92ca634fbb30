package sigset

import (
	"strconv"
	"strings"
	"testing"

	"github.com/radkum/redr/digest"
	"github.com/radkum/redr/rule"
)

func shaRule(t *testing.T, name string, content string) rule.Rule {
	t.Helper()
	doc := []byte(`
name: ` + name + `
description: test
sha256: "` + digest.FromBytes([]byte(content)).String() + `"
`)
	r, err := rule.Compile(doc)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return r
}

func TestShaSetEvalFileHitAndMiss(t *testing.T) {
	s := NewShaSet()
	if err := s.AppendRule(shaRule(t, "r1", "evil")); err != nil {
		t.Fatalf("append: %v", err)
	}

	matched, ok, err := s.EvalFile(strings.NewReader("evil"))
	if err != nil || !ok {
		t.Fatalf("expected a hit, got ok=%v err=%v", ok, err)
	}
	if matched.Name != "r1" {
		t.Fatalf("wrong rule matched: %s", matched.Name)
	}

	_, ok, err = s.EvalFile(strings.NewReader("benign"))
	if err != nil || ok {
		t.Fatalf("expected a miss, got ok=%v err=%v", ok, err)
	}
}

func TestShaSetEvalHashesTakesLastElement(t *testing.T) {
	s := NewShaSet()
	want := shaRule(t, "terminal", "payload")
	if err := s.AppendRule(want); err != nil {
		t.Fatalf("append: %v", err)
	}

	noise := digest.FromBytes([]byte("irrelevant"))
	terminal := want.Body.Sha

	matched, ok := s.EvalHashes([]digest.Sha256Buf{noise, terminal})
	if !ok || matched.Name != "terminal" {
		t.Fatalf("expected the last element to be probed")
	}

	_, ok = s.EvalHashes([]digest.Sha256Buf{terminal, noise})
	if ok {
		t.Fatalf("expected a miss when the matching hash is not last")
	}

	_, ok = s.EvalHashes(nil)
	if ok {
		t.Fatalf("expected an empty list to be a clean miss, not an error")
	}
}

func TestShaSetAppendRejectsWrongKind(t *testing.T) {
	s := NewShaSet()
	doc := []byte(`
name: wrong
description: wrong kind
calls:
  - "Sleep"
`)
	r, err := rule.Compile(doc)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if err := s.AppendRule(r); err == nil {
		t.Fatalf("expected ErrWrongKind")
	}
}

func importsRule(t *testing.T, name string, pairs ...string) rule.Rule {
	t.Helper()
	var b strings.Builder
	b.WriteString("name: " + name + "\ndescription: test\nimports:\n")
	for _, p := range pairs {
		b.WriteString("  - \"" + p + "\"\n")
	}
	r, err := rule.Compile([]byte(b.String()))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return r
}

func TestHeurSetFindsFullyMatchedRuleLowestIDWins(t *testing.T) {
	h := NewHeurSet(rule.KindImports)

	ruleA := importsRule(t, "AAAA", "kernel32.dll+sleep", "user32.dll+messageboxa")
	ruleB := importsRule(t, "BBBB", "user32.dll+messageboxa", "shell32.dll+shellexecutea")

	if err := h.AppendRule(ruleA); err != nil {
		t.Fatalf("append A: %v", err)
	}
	if err := h.AppendRule(ruleB); err != nil {
		t.Fatalf("append B: %v", err)
	}

	observed := []digest.Sha256Buf{
		digest.ImportHash([]byte("kernel32.dll"), []byte("sleep")),
		digest.ImportHash([]byte("user32.dll"), []byte("messageboxa")),
		digest.ImportHash([]byte("shell32.dll"), []byte("shellexecutea")),
	}

	matched, ok := h.EvalHashes(observed)
	if !ok {
		t.Fatalf("expected a match")
	}
	if matched.Name != "AAAA" {
		t.Fatalf("expected the lowest-id fully-matched rule (AAAA), got %s", matched.Name)
	}
}

func TestHeurSetNoMatchWhenPredicateMissing(t *testing.T) {
	h := NewHeurSet(rule.KindImports)
	r := importsRule(t, "needs-both", "kernel32.dll+sleep", "user32.dll+messageboxa")
	if err := h.AppendRule(r); err != nil {
		t.Fatalf("append: %v", err)
	}

	observed := []digest.Sha256Buf{digest.ImportHash([]byte("kernel32.dll"), []byte("sleep"))}
	if _, ok := h.EvalHashes(observed); ok {
		t.Fatalf("expected no match when only one of two required predicates is observed")
	}
}

func TestHeurSetEnforcesCapacity(t *testing.T) {
	h := NewHeurSet(rule.KindImports)
	for i := 0; i < MaxRules; i++ {
		r := importsRule(t, "r", "lib"+strconv.Itoa(i)+".dll+fn")
		if err := h.AppendRule(r); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	overflow := importsRule(t, "overflow", "zz.dll+fn")
	err := h.AppendRule(overflow)
	if err == nil {
		t.Fatalf("expected ErrTooManySignatures on the 33rd rule")
	}
	if _, ok := err.(ErrTooManySignatures); !ok {
		t.Fatalf("expected ErrTooManySignatures, got %T", err)
	}
}

func TestHeurSetEmptySetNeverMatches(t *testing.T) {
	h := NewHeurSet(rule.KindEvent)
	if _, ok := h.EvalHashes([]digest.Sha256Buf{digest.FromBytes([]byte("x"))}); ok {
		t.Fatalf("an empty set must never match")
	}
}
