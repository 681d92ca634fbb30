package event

import (
	"github.com/radkum/redr/digest"
)

// Event is a decoded kernel message: something that knows its own class,
// can serialize to the wire format, and can enumerate the list of
// attribute hashes a behavioral signature matches against.
type Event interface {
	Class() Class
	Payload() []byte
	HashMembers() []digest.Sha256Buf
}

// Decode strips the class tag from a frame and returns the decoded event.
// It fails only on truncation or an unrecognized class tag
// (ErrUnknownEvent); it never validates semantics.
func Decode(frame []byte) (Event, error) {
	class, err := peekClass(frame)
	if err != nil {
		return nil, err
	}
	payload := frame[4:]

	switch class {
	case ClassFileCreate:
		return decodeFileCreate(payload)
	case ClassProcessCreate:
		return decodeProcessCreate(payload)
	case ClassRegistrySetValue:
		return decodeRegistrySetValue(payload)
	case ClassImageLoad:
		return decodeImageLoad(payload)
	default:
		return nil, ErrUnknownEvent{Class: class}
	}
}

// Encode prefixes e's payload with its class tag.
func Encode(e Event) []byte {
	return EncodeFrame(e.Class(), e.Payload())
}

// FileCreate is delivered when the minifilter observes a new file.
type FileCreate struct {
	Path string
}

const fileCreateName = "FileCreate"

func (FileCreate) Class() Class { return ClassFileCreate }

func (e FileCreate) Payload() []byte {
	return encodeString(e.Path)
}

func decodeFileCreate(b []byte) (FileCreate, error) {
	path, _, err := decodeString(b)
	if err != nil {
		return FileCreate{}, err
	}
	return FileCreate{Path: path}, nil
}

// HashMembers returns the canonical attribute hashes for this event; a
// zero/empty attribute contributes no hash, matching the rule compiler's
// exclusion of unset fields.
func (e FileCreate) HashMembers() []digest.Sha256Buf {
	var out []digest.Sha256Buf
	if e.Path != "" {
		out = append(out, digest.AttrHash(fileCreateName, "path", e.Path))
	}
	return out
}

// ProcessCreate is delivered when a new process starts.
type ProcessCreate struct {
	Pid       uint32
	ParentPid uint32
	Path      string
}

const processCreateName = "ProcessCreate"

func (ProcessCreate) Class() Class { return ClassProcessCreate }

func (e ProcessCreate) Payload() []byte {
	out := make([]byte, 0, 8+len(e.Path)+8)
	out = append(out, putU32(e.Pid)...)
	out = append(out, putU32(e.ParentPid)...)
	out = append(out, encodeString(e.Path)...)
	return out
}

func decodeProcessCreate(b []byte) (ProcessCreate, error) {
	pid, err := getU32(b)
	if err != nil {
		return ProcessCreate{}, err
	}
	b = b[4:]

	parentPid, err := getU32(b)
	if err != nil {
		return ProcessCreate{}, err
	}
	b = b[4:]

	path, _, err := decodeString(b)
	if err != nil {
		return ProcessCreate{}, err
	}
	return ProcessCreate{Pid: pid, ParentPid: parentPid, Path: path}, nil
}

// HashMembers guards pid and parent_id with independent non-zero checks:
// a nonzero parent must hash even when pid is zero.
func (e ProcessCreate) HashMembers() []digest.Sha256Buf {
	var out []digest.Sha256Buf
	if e.Pid != 0 {
		out = append(out, digest.AttrHash(processCreateName, "pid", e.Pid))
	}
	if e.ParentPid != 0 {
		out = append(out, digest.AttrHash(processCreateName, "parent_id", e.ParentPid))
	}
	if e.Path != "" {
		out = append(out, digest.AttrHash(processCreateName, "path", e.Path))
	}
	return out
}

// ImageLoad is delivered when a module/image is mapped into a process.
type ImageLoad struct {
	Pid       uint32
	ImagePath string
}

const imageLoadName = "ImageLoad"

func (ImageLoad) Class() Class { return ClassImageLoad }

func (e ImageLoad) Payload() []byte {
	out := make([]byte, 0, 4+len(e.ImagePath)+8)
	out = append(out, putU32(e.Pid)...)
	out = append(out, encodeString(e.ImagePath)...)
	return out
}

func decodeImageLoad(b []byte) (ImageLoad, error) {
	pid, err := getU32(b)
	if err != nil {
		return ImageLoad{}, err
	}
	b = b[4:]

	path, _, err := decodeString(b)
	if err != nil {
		return ImageLoad{}, err
	}
	return ImageLoad{Pid: pid, ImagePath: path}, nil
}

func (e ImageLoad) HashMembers() []digest.Sha256Buf {
	var out []digest.Sha256Buf
	if e.Pid != 0 {
		out = append(out, digest.AttrHash(imageLoadName, "pid", e.Pid))
	}
	if e.ImagePath != "" {
		out = append(out, digest.AttrHash(imageLoadName, "image_path", e.ImagePath))
	}
	return out
}
