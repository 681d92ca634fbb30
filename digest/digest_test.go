package digest

import (
	"bytes"
	"testing"
)

func TestFromBytesAndReader(t *testing.T) {
	fromBytes := FromBytes([]byte("hello"))
	fromReader, err := FromReader(bytes.NewReader([]byte("hello")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fromBytes != fromReader {
		t.Fatalf("FromBytes and FromReader disagreed: %x != %x", fromBytes, fromReader)
	}

	const expect = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got := fromBytes.String(); got != expect {
		t.Fatalf("unexpected hex: %s", got)
	}
}

func TestParseHexRoundTrip(t *testing.T) {
	d := FromBytes([]byte("round trip me"))
	parsed, err := ParseHex(d.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed != d {
		t.Fatalf("round trip mismatch: %s != %s", parsed, d)
	}
}

func TestParseHexRejectsWrongLength(t *testing.T) {
	if _, err := ParseHex("deadbeef"); err == nil {
		t.Fatalf("expected error for short hex string")
	}
	if _, err := ParseHex("not hex at all"); err == nil {
		t.Fatalf("expected error for malformed hex")
	}
}

func TestAttrHashFormatting(t *testing.T) {
	intForm := AttrHash("ProcessCreate", "pid", uint32(123))
	strForm := AttrHash("ProcessCreate", "pid", "123")
	if intForm != strForm {
		t.Fatalf("expected decimal-formatted uint32 to hash the same as its string form")
	}

	caseSensitive := AttrHash("FileCreate", "path", "C:\\Evil.exe")
	otherCase := AttrHash("FileCreate", "path", "c:\\evil.exe")
	if caseSensitive == otherCase {
		t.Fatalf("attribute hashing must be case-preserving for values")
	}
}

func TestImportHashLowersBothSides(t *testing.T) {
	a := ImportHash([]byte("KERNEL32.dll"), []byte("Sleep"))
	b := ImportHash([]byte("kernel32.dll"), []byte("sleep"))
	if a != b {
		t.Fatalf("import hashing must lower-case both library and name")
	}

	manual := FromConcat([]byte("kernel32.dll"), []byte("+"), []byte("sleep"))
	if a != manual {
		t.Fatalf("ImportHash must match library+\"+\"+name hashed as one stream")
	}
}
