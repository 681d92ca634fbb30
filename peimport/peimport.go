// Package peimport extracts the import-table fingerprint the heuristic
// file set matches against, built on the standard library's debug/pe
// package.
package peimport

import (
	"bytes"
	"debug/pe"
	"io"
	"strings"

	"github.com/radkum/redr/digest"
)

// Extract parses r as a PE image and returns one hash per (library, name)
// import pair. Non-PE or malformed input is a soft failure: it returns a
// nil slice and a nil error, the same "no imports" result a clean file
// with zero imports would produce, so a caller never has to special-case
// "not a PE" versus "a PE with nothing imported".
func Extract(r io.Reader) ([]digest.Sha256Buf, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, nil
	}
	defer f.Close()

	symbols, err := f.ImportedSymbols()
	if err != nil {
		return nil, nil
	}

	out := make([]digest.Sha256Buf, 0, len(symbols))
	for _, sym := range symbols {
		name, library, ok := strings.Cut(sym, ":")
		if !ok || name == "" || library == "" {
			continue
		}
		out = append(out, digest.ImportHash([]byte(library), []byte(name)))
	}
	return out, nil
}
