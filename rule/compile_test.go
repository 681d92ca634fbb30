package rule

import (
	"strings"
	"testing"

	"github.com/radkum/redr/digest"
	"github.com/radkum/redr/event"
)

func TestCompileSha(t *testing.T) {
	doc := []byte(`
name: eicar
description: eicar test file
sha256: "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
`)
	r, err := Compile(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Body.Kind != KindSha {
		t.Fatalf("expected KindSha, got %v", r.Body.Kind)
	}
	want := digest.FromBytes([]byte("hello"))
	if r.Body.Sha != want {
		t.Fatalf("sha mismatch: got %x want %x", r.Body.Sha, want)
	}
}

func TestCompileRejectsBadHex(t *testing.T) {
	doc := []byte(`
name: bad
description: bad hex
sha256: "not-hex"
`)
	if _, err := Compile(doc); err == nil {
		t.Fatalf("expected an error for malformed hex")
	}
}

func TestCompileImportsLowercasesAndMatchesImportHash(t *testing.T) {
	doc := []byte(`
name: sleeper
description: calls Sleep
imports:
  - "KERNEL32.dll+Sleep"
`)
	r, err := Compile(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Body.Hashes) != 1 {
		t.Fatalf("expected exactly one hash, got %d", len(r.Body.Hashes))
	}
	want := digest.ImportHash([]byte("kernel32.dll"), []byte("Sleep"))
	if r.Body.Hashes[0] != want {
		t.Fatalf("rule-compiled import hash does not match the PE extractor's hash for the same (library,name)")
	}
}

func TestCompileRejectsEmptyImportsList(t *testing.T) {
	doc := []byte(`
name: empty
description: nothing here
imports: []
`)
	if _, err := Compile(doc); err == nil {
		t.Fatalf("expected an empty-hash-list error")
	}
}

func TestCompileCallsLowercases(t *testing.T) {
	doc := []byte(`
name: net
description: network call
calls:
  - "InternetOpenUrlA"
`)
	r, err := Compile(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := digest.FromBytes([]byte(strings.ToLower("InternetOpenUrlA")))
	if r.Body.Hashes[0] != want {
		t.Fatalf("calls hash not lowercased consistently")
	}
}

func TestCompileEventReconstructsAndHashes(t *testing.T) {
	doc := []byte(`
name: dropper
description: drops a payload then creates a process
event:
  ProcessCreate:
    path: "C:\\Windows\\Temp\\evil.exe"
`)
	r, err := Compile(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Body.Hashes) != 1 {
		t.Fatalf("expected a single hash (pid/parent_id are zero and excluded), got %d", len(r.Body.Hashes))
	}
	want := digest.AttrHash("ProcessCreate", "path", "C:\\Windows\\Temp\\evil.exe")
	if r.Body.Hashes[0] != want {
		t.Fatalf("event hash mismatch")
	}
}

func TestCompileEventRejectsAllZeroAttributes(t *testing.T) {
	doc := []byte(`
name: empty-event
description: no attributes at all
event:
  FileCreate: {}
`)
	if _, err := Compile(doc); err == nil {
		t.Fatalf("expected an empty-hash-list error when every attribute defaults to zero")
	}
}

func TestCompileRejectsMultipleBodies(t *testing.T) {
	doc := []byte(`
name: confused
description: two bodies at once
sha256: "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
calls:
  - "Sleep"
`)
	if _, err := Compile(doc); err == nil {
		t.Fatalf("expected ErrAmbiguousBody")
	}
}

func TestCompileRejectsNoBody(t *testing.T) {
	doc := []byte(`
name: empty
description: no body at all
`)
	if _, err := Compile(doc); err == nil {
		t.Fatalf("expected ErrAmbiguousBody")
	}
}

func TestCompileRegSetValueDataMatchesLiveEvent(t *testing.T) {
	doc := []byte(`
name: run-key
description: writes an autostart value
event:
  RegSetValue:
    key_name: "\\REGISTRY\\MACHINE\\Software\\Microsoft\\Windows\\CurrentVersion\\Run"
    value_name: "Windows Live Messenger"
    data_type: 1
    data: "C:\\WINDOWS\\system32\\evil.exe"
`)
	r, err := Compile(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Body.Hashes) != 4 {
		t.Fatalf("expected key_name, value_name, data_type and data to hash, got %d", len(r.Body.Hashes))
	}

	// A live event carries the same value as raw UTF-16LE registry bytes
	// plus attributes the rule never named; its hash list must be a
	// superset of the rule's.
	live := event.RegistrySetValue{
		Pid:       123,
		Tid:       234,
		KeyName:   "\\REGISTRY\\MACHINE\\Software\\Microsoft\\Windows\\CurrentVersion\\Run",
		ValueName: "Windows Live Messenger",
		DataType:  1,
		Data:      utf16leBytes("C:\\WINDOWS\\system32\\evil.exe"),
	}
	observed := make(map[digest.Sha256Buf]bool)
	for _, h := range live.HashMembers() {
		observed[h] = true
	}
	for i, h := range r.Body.Hashes {
		if !observed[h] {
			t.Fatalf("rule hash %d is not produced by the matching live event", i)
		}
	}
}

func TestCompileRegSetValueBinaryDataIsExcluded(t *testing.T) {
	doc := []byte(`
name: binary-data
description: REG_BINARY data never hashes
event:
  RegSetValue:
    value_name: "payload"
    data_type: 3
    data: "C:\\WINDOWS\\system32\\evil.exe"
`)
	r, err := Compile(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Body.Hashes) != 2 {
		t.Fatalf("expected only value_name and data_type to hash for REG_BINARY, got %d", len(r.Body.Hashes))
	}
}

func TestCompileRegSetValueEvent(t *testing.T) {
	doc := []byte(`
name: persistence
description: writes a run key
event:
  RegSetValue:
    key_name: "Software\\Microsoft\\Windows\\CurrentVersion\\Run"
    value_name: "evil"
`)
	r, err := Compile(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Body.Hashes) != 2 {
		t.Fatalf("expected key_name and value_name to hash independently, got %d", len(r.Body.Hashes))
	}
}
