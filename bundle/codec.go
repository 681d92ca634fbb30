package bundle

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/radkum/redr/rule"
)

// Set is one section of a bundle: the rule kind it holds (identified by
// Magic) and the rules themselves, in the order they will be assigned
// dense ids on load.
type Set struct {
	Magic uint32
	Rules []rule.Rule
}

// WriteBundle serializes sets into the master container format, computing
// and storing each section's checksum.
func WriteBundle(w io.Writer, sets []Set) error {
	header := BundleHeader{Magic: MagicBundle, SetCount: uint32(len(sets))}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}
	for _, s := range sets {
		if err := writeSet(w, s); err != nil {
			return err
		}
	}
	return nil
}

func writeSet(w io.Writer, s Set) error {
	ruleHeaders := make([]RuleHeader, 0, len(s.Rules))
	var bodies bytes.Buffer
	for id, r := range s.Rules {
		body := encodeRule(r)
		if len(body) > MaxRuleBodySize {
			return ErrIncorrectSignatureSize{Size: uint32(len(body))}
		}
		ruleHeaders = append(ruleHeaders, RuleHeader{
			ID:     uint32(id),
			Size:   uint32(len(body)),
			Offset: uint32(bodies.Len()),
		})
		bodies.Write(body)
	}

	var headerBytes bytes.Buffer
	for _, rh := range ruleHeaders {
		if err := binary.Write(&headerBytes, binary.LittleEndian, rh); err != nil {
			return err
		}
	}

	size := uint32(headerBytes.Len() + bodies.Len())
	checksum := sectionChecksum(size, uint32(len(ruleHeaders)), headerBytes.Bytes(), bodies.Bytes())

	setHeader := SetHeader{
		Magic:        s.Magic,
		Checksum:     checksum,
		Size:         size,
		ElementCount: uint32(len(ruleHeaders)),
	}
	if err := binary.Write(w, binary.LittleEndian, setHeader); err != nil {
		return err
	}
	if _, err := w.Write(headerBytes.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(bodies.Bytes())
	return err
}

func sectionChecksum(size, elementCount uint32, ruleHeaders, bodies []byte) [32]byte {
	h := sha256.New()
	var sizeLE, countLE [4]byte
	binary.LittleEndian.PutUint32(sizeLE[:], size)
	binary.LittleEndian.PutUint32(countLE[:], elementCount)
	h.Write(sizeLE[:])
	h.Write(countLE[:])
	h.Write(ruleHeaders)
	h.Write(bodies)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ReadBundle decodes every section of a master container, verifying each
// section's checksum before decoding any of its rule bodies.
func ReadBundle(r io.Reader) ([]Set, error) {
	var header BundleHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("bundle: reading header: %w", err)
	}
	if header.Magic != MagicBundle {
		return nil, ErrUnknownMagic{Magic: header.Magic}
	}

	sets := make([]Set, 0, header.SetCount)
	for i := uint32(0); i < header.SetCount; i++ {
		s, err := readSet(r)
		if err != nil {
			return nil, err
		}
		sets = append(sets, s)
	}
	return sets, nil
}

func readSet(r io.Reader) (Set, error) {
	var setHeader SetHeader
	if err := binary.Read(r, binary.LittleEndian, &setHeader); err != nil {
		return Set{}, fmt.Errorf("bundle: reading set header: %w", err)
	}

	switch setHeader.Magic {
	case MagicSha, MagicHeur, MagicDynamic, MagicBehav:
	default:
		return Set{}, ErrUnknownMagic{Magic: setHeader.Magic}
	}

	headersSize := uint64(setHeader.ElementCount) * RuleHeaderSize
	if headersSize > uint64(setHeader.Size) {
		return Set{}, ErrIncorrectSignatureSize{Size: setHeader.Size}
	}

	data := make([]byte, setHeader.Size)
	if _, err := io.ReadFull(r, data); err != nil {
		return Set{}, fmt.Errorf("bundle: reading set data: %w", err)
	}

	ruleHeaderBytes := data[:headersSize]
	bodies := data[headersSize:]

	checksum := sectionChecksum(setHeader.Size, setHeader.ElementCount, ruleHeaderBytes, bodies)
	if checksum != setHeader.Checksum {
		return Set{}, ErrIncorrectChecksum{Want: setHeader.Checksum, Got: checksum}
	}

	rules := make([]rule.Rule, 0, setHeader.ElementCount)
	for i := uint32(0); i < setHeader.ElementCount; i++ {
		off := int(i) * RuleHeaderSize
		var rh RuleHeader
		rdr := bytes.NewReader(ruleHeaderBytes[off : off+RuleHeaderSize])
		if err := binary.Read(rdr, binary.LittleEndian, &rh); err != nil {
			return Set{}, err
		}

		if rh.Size > MaxRuleBodySize {
			return Set{}, ErrIncorrectSignatureSize{Size: rh.Size, Offset: rh.Offset}
		}
		start := uint64(rh.Offset)
		end := start + uint64(rh.Size)
		if end > uint64(len(bodies)) {
			return Set{}, ErrIncorrectSignatureSize{Size: rh.Size, Offset: rh.Offset}
		}

		r, err := decodeRule(bodies[start:end])
		if err != nil {
			return Set{}, err
		}
		rules = append(rules, r)
	}

	return Set{Magic: setHeader.Magic, Rules: rules}, nil
}
