package sigstore

import (
	"bytes"
	"strings"
	"testing"

	"github.com/radkum/redr/digest"
	"github.com/radkum/redr/rule"
)

func compile(t *testing.T, doc string) rule.Rule {
	t.Helper()
	r, err := rule.Compile([]byte(doc))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return r
}

func TestEvalFileShaHitAndMiss(t *testing.T) {
	sha := compile(t, `
name: exact
description: exact content match
sha256: "`+digest.FromBytes([]byte("payload")).String()+`"
`)
	store, err := build([]rule.Rule{sha})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	matched, ok, err := store.EvalFile(bytes.NewReader([]byte("payload")))
	if err != nil || !ok || matched.Name != "exact" {
		t.Fatalf("expected a sha hit, got ok=%v err=%v matched=%+v", ok, err, matched)
	}

	_, ok, err = store.EvalFile(bytes.NewReader([]byte("benign")))
	if err != nil || ok {
		t.Fatalf("expected a clean miss")
	}
}

func TestEvalSandboxAndEventsDispatchIndependently(t *testing.T) {
	call := compile(t, `
name: net-call
description: makes a network call
calls:
  - "InternetOpenUrlA"
`)
	ev := compile(t, `
name: dropper
description: drops to temp
event:
  FileCreate:
    path: "C:\\Windows\\Temp\\evil.exe"
`)
	store, err := build([]rule.Rule{call, ev})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	matched, ok := store.EvalSandbox([]digest.Sha256Buf{digest.FromBytes([]byte(strings.ToLower("InternetOpenUrlA")))})
	if !ok || matched.Name != "net-call" {
		t.Fatalf("expected a sandbox hit")
	}

	matched, ok = store.EvalEvents([]digest.Sha256Buf{digest.AttrHash("FileCreate", "path", "C:\\Windows\\Temp\\evil.exe")})
	if !ok || matched.Name != "dropper" {
		t.Fatalf("expected a behavioral hit")
	}

	if _, ok := store.EvalSandbox(nil); ok {
		t.Fatalf("empty sandbox set must never match")
	}
}

func TestSerializeThenLoadFromBundlePreservesDispatch(t *testing.T) {
	sha := compile(t, `
name: exact
description: exact content match
sha256: "`+digest.FromBytes([]byte("payload")).String()+`"
`)
	call := compile(t, `
name: net-call
description: makes a network call
calls:
  - "InternetOpenUrlA"
`)
	store, err := build([]rule.Rule{sha, call})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	var buf bytes.Buffer
	if err := store.Serialize(&buf); err != nil {
		t.Fatalf("serialize: %v", err)
	}

	reloaded, err := LoadFromBundle(&buf)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	matched, ok, err := reloaded.EvalFile(bytes.NewReader([]byte("payload")))
	if err != nil || !ok || matched.Name != "exact" {
		t.Fatalf("expected sha hit to survive a bundle round trip")
	}

	matched, ok = reloaded.EvalSandbox([]digest.Sha256Buf{digest.FromBytes([]byte(strings.ToLower("InternetOpenUrlA")))})
	if !ok || matched.Name != "net-call" {
		t.Fatalf("expected sandbox hit to survive a bundle round trip")
	}
}

func TestBuildLeavesUntargetedSetsNil(t *testing.T) {
	sha := compile(t, `
name: exact
description: exact content match
sha256: "`+digest.FromBytes([]byte("payload")).String()+`"
`)
	store, err := build([]rule.Rule{sha})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if store.sandbox != nil || store.behavioral != nil {
		t.Fatalf("sandbox and behavioral sets must stay nil when no rule targets them")
	}
}
