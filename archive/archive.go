// Package archive unpacks container files (zip archives) so the scan
// pipeline can recurse into their members, the same soft-failure contract
// peimport uses: an input that isn't a recognizable archive yields no
// children and no error, never a crash.
package archive

import (
	"archive/zip"
	"io"
)

// Child is a single archive member handed to the caller's push callback.
// Size is the member's uncompressed size, read straight from the zip
// central directory entry so callers can pre-size buffers without
// decompressing twice.
type Child struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// MaxChildren bounds how many members Unpack will push from a single
// archive, independent of any budget the caller layers on top across a
// whole recursive unpack tree.
const MaxChildren = 255

// ErrTooManyChildren is returned when an archive has more than MaxChildren
// members.
type ErrTooManyChildren struct {
	Limit int
}

func (e ErrTooManyChildren) Error() string {
	return "archive: member count exceeds limit"
}

// Unpack reads r as a zip archive of the given size and invokes push once
// per member, in central-directory order. If r is not a valid zip archive,
// Unpack returns nil without calling push: the caller treats the input as an ordinary,
// non-container file rather than failing the scan.
func Unpack(r io.ReaderAt, size int64, push func(Child) error) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil
	}

	if len(zr.File) > MaxChildren {
		return ErrTooManyChildren{Limit: MaxChildren}
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		entry := f
		child := Child{
			Name: entry.Name,
			Size: int64(entry.UncompressedSize64),
			Open: func() (io.ReadCloser, error) { return entry.Open() },
		}
		if err := push(child); err != nil {
			return err
		}
	}
	return nil
}
