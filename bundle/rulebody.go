package bundle

import (
	"encoding/binary"

	"github.com/radkum/redr/digest"
	"github.com/radkum/redr/rule"
)

// encodeRule serializes a Rule to the byte form stored as one RuleBody.
// The layout is private to this package: name, description, body kind tag,
// then either a single hash (Sha) or a length-prefixed hash list.
func encodeRule(r rule.Rule) []byte {
	out := make([]byte, 0, 64)
	out = appendString(out, r.Name)
	out = appendString(out, r.Description)
	out = appendU32(out, uint32(r.Body.Kind))

	if r.Body.Kind == rule.KindSha {
		out = append(out, r.Body.Sha[:]...)
		return out
	}

	out = appendU32(out, uint32(len(r.Body.Hashes)))
	for _, h := range r.Body.Hashes {
		out = append(out, h[:]...)
	}
	return out
}

func decodeRule(b []byte) (rule.Rule, error) {
	name, rest, err := takeString(b)
	if err != nil {
		return rule.Rule{}, err
	}
	description, rest, err := takeString(rest)
	if err != nil {
		return rule.Rule{}, err
	}
	kindU32, rest, err := takeU32(rest)
	if err != nil {
		return rule.Rule{}, err
	}
	kind := rule.Kind(kindU32)

	if kind == rule.KindSha {
		if len(rest) < digest.Size {
			return rule.Rule{}, ErrTruncated{Want: digest.Size, Have: len(rest)}
		}
		var sha digest.Sha256Buf
		copy(sha[:], rest[:digest.Size])
		return rule.Rule{Name: name, Description: description, Body: rule.Body{Kind: kind, Sha: sha}}, nil
	}

	count, rest, err := takeU32(rest)
	if err != nil {
		return rule.Rule{}, err
	}
	if uint64(count)*digest.Size > uint64(len(rest)) {
		return rule.Rule{}, ErrTruncated{Want: int(count) * digest.Size, Have: len(rest)}
	}
	hashes := make([]digest.Sha256Buf, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(rest) < digest.Size {
			return rule.Rule{}, ErrTruncated{Want: digest.Size, Have: len(rest)}
		}
		var h digest.Sha256Buf
		copy(h[:], rest[:digest.Size])
		hashes = append(hashes, h)
		rest = rest[digest.Size:]
	}
	return rule.Rule{Name: name, Description: description, Body: rule.Body{Kind: kind, Hashes: hashes}}, nil
}

func appendU32(out []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(out, b[:]...)
}

func takeU32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, ErrTruncated{Want: 4, Have: len(b)}
	}
	return binary.LittleEndian.Uint32(b), b[4:], nil
}

func appendString(out []byte, s string) []byte {
	out = appendU32(out, uint32(len(s)))
	return append(out, s...)
}

func takeString(b []byte) (string, []byte, error) {
	n, rest, err := takeU32(b)
	if err != nil {
		return "", nil, err
	}
	if uint32(len(rest)) < n {
		return "", nil, ErrTruncated{Want: int(n), Have: len(rest)}
	}
	return string(rest[:n]), rest[n:], nil
}
