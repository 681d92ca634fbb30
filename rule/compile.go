package rule

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf16"

	"gopkg.in/yaml.v2"

	"github.com/radkum/redr/digest"
	"github.com/radkum/redr/event"
)

// ErrDecodeError wraps a YAML parse failure with the offending file path.
type ErrDecodeError struct {
	Path string
	Err  error
}

func (e ErrDecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("rule: decode error: %v", e.Err)
	}
	return fmt.Sprintf("rule: decode error in %s: %v", e.Path, e.Err)
}

func (e ErrDecodeError) Unwrap() error { return e.Err }

// ErrAmbiguousBody is returned when a document names zero, or more than
// one, of sha256/imports/calls/event.
type ErrAmbiguousBody struct {
	Name  string
	Count int
}

func (e ErrAmbiguousBody) Error() string {
	if e.Count == 0 {
		return fmt.Sprintf("rule %q: must set exactly one of sha256, imports, calls, event", e.Name)
	}
	return fmt.Sprintf("rule %q: sets %d of sha256/imports/calls/event, want exactly 1", e.Name, e.Count)
}

// ErrUnknownEventKind is returned when an event body names something other
// than ProcessCreate, FileCreate, ImageLoad or RegSetValue.
type ErrUnknownEventKind struct {
	Name string
}

func (e ErrUnknownEventKind) Error() string {
	return fmt.Sprintf("rule %q: event body names zero or more than one event kind", e.Name)
}

// document is the flat YAML shape a rule file takes: a name, a description,
// and exactly one of the four body fields.
type document struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Sha256      *string       `yaml:"sha256,omitempty"`
	Imports     []string      `yaml:"imports,omitempty"`
	Calls       []string      `yaml:"calls,omitempty"`
	Event       *eventDocBody `yaml:"event,omitempty"`
}

// eventDocBody names exactly one event kind; unset attributes take Go's
// zero value and are excluded from hashing the same way a live event
// excludes its zero-valued attributes.
type eventDocBody struct {
	ProcessCreate *yamlProcessCreate `yaml:"ProcessCreate,omitempty"`
	FileCreate    *yamlFileCreate    `yaml:"FileCreate,omitempty"`
	ImageLoad     *yamlImageLoad     `yaml:"ImageLoad,omitempty"`
	RegSetValue   *yamlRegSetValue   `yaml:"RegSetValue,omitempty"`
}

type yamlProcessCreate struct {
	Pid       uint32 `yaml:"pid"`
	ParentPid uint32 `yaml:"parent_id"`
	Path      string `yaml:"path"`
}

type yamlFileCreate struct {
	Path string `yaml:"path"`
}

type yamlImageLoad struct {
	Pid       uint32 `yaml:"pid"`
	ImagePath string `yaml:"image_path"`
}

type yamlRegSetValue struct {
	Pid       uint32 `yaml:"pid"`
	Tid       uint32 `yaml:"tid"`
	KeyName   string `yaml:"key_name"`
	ValueName string `yaml:"value_name"`
	DataType  uint32 `yaml:"data_type"`
	Data      string `yaml:"data"`
}

// Compile parses a single YAML document into a Rule.
func Compile(raw []byte) (Rule, error) {
	return compileNamed("", raw)
}

func compileNamed(path string, raw []byte) (Rule, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Rule{}, ErrDecodeError{Path: path, Err: err}
	}

	set := 0
	if doc.Sha256 != nil {
		set++
	}
	if doc.Imports != nil {
		set++
	}
	if doc.Calls != nil {
		set++
	}
	if doc.Event != nil {
		set++
	}
	if set != 1 {
		return Rule{}, ErrAmbiguousBody{Name: doc.Name, Count: set}
	}

	switch {
	case doc.Sha256 != nil:
		sha, err := digest.ParseHex(strings.TrimSpace(*doc.Sha256))
		if err != nil {
			return Rule{}, ErrDecodeError{Path: path, Err: err}
		}
		return newShaRule(doc.Name, doc.Description, sha), nil

	case doc.Imports != nil:
		hashes := make([]digest.Sha256Buf, 0, len(doc.Imports))
		for _, s := range doc.Imports {
			hashes = append(hashes, digest.FromBytes([]byte(strings.ToLower(s))))
		}
		return newHashListRule(doc.Name, doc.Description, KindImports, hashes)

	case doc.Calls != nil:
		hashes := make([]digest.Sha256Buf, 0, len(doc.Calls))
		for _, s := range doc.Calls {
			hashes = append(hashes, digest.FromBytes([]byte(strings.ToLower(s))))
		}
		return newHashListRule(doc.Name, doc.Description, KindCalls, hashes)

	default:
		ev, err := doc.Event.build()
		if err != nil {
			return Rule{}, fmt.Errorf("rule %q: %w", doc.Name, err)
		}
		return newHashListRule(doc.Name, doc.Description, KindEvent, ev.HashMembers())
	}
}

func (b *eventDocBody) build() (event.Event, error) {
	set := 0
	var ev event.Event
	if b.ProcessCreate != nil {
		set++
		ev = event.ProcessCreate{Pid: b.ProcessCreate.Pid, ParentPid: b.ProcessCreate.ParentPid, Path: b.ProcessCreate.Path}
	}
	if b.FileCreate != nil {
		set++
		ev = event.FileCreate{Path: b.FileCreate.Path}
	}
	if b.ImageLoad != nil {
		set++
		ev = event.ImageLoad{Pid: b.ImageLoad.Pid, ImagePath: b.ImageLoad.ImagePath}
	}
	if b.RegSetValue != nil {
		set++
		ev = event.RegistrySetValue{
			Pid:       b.RegSetValue.Pid,
			Tid:       b.RegSetValue.Tid,
			KeyName:   b.RegSetValue.KeyName,
			ValueName: b.RegSetValue.ValueName,
			DataType:  b.RegSetValue.DataType,
			// Live RegistrySetValue events carry Data as the registry's
			// raw UTF-16LE bytes; the author's string has to take the same
			// shape or the reconstructed event would hash differently than
			// a live one with identical data.
			Data: utf16leBytes(b.RegSetValue.Data),
		}
	}
	if set != 1 {
		return nil, ErrUnknownEventKind{}
	}
	return ev, nil
}

// utf16leBytes encodes s as NUL-terminated UTF-16LE, the wire shape of a
// registry string value. An empty s yields nil so the attribute stays
// excluded from hashing.
func utf16leBytes(s string) []byte {
	if s == "" {
		return nil
	}
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, 2*len(units)+2)
	for _, u := range units {
		out = append(out, byte(u), byte(u>>8))
	}
	return append(out, 0, 0)
}

// CompileDir walks dir recursively and compiles every .yml/.yaml file found,
// in lexical path order, so bundle rule ids are reproducible across runs.
func CompileDir(dir string) ([]Rule, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yml", ".yaml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rules := make([]Rule, 0, len(paths))
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		r, err := compileNamed(p, raw)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}
