package store

import (
	"github.com/pkg/errors"

	"github.com/mvaleed/bigfile/internal/bigfile"
)

// ExtractReferences splits a payload into its reference list and the
// type-specific remainder. The preamble is an i32 count followed by that many
// u32 keys.
func ExtractReferences(data []byte) ([]bigfile.Key, []byte, error) {
	c := bigfile.NewCursor(data)
	n := c.Int32()
	if err := c.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "reference count")
	}
	if n < 0 {
		return nil, nil, errors.Errorf("negative reference count %d", n)
	}
	if int64(n)*4 > int64(c.Len()) {
		return nil, nil, errors.Errorf("reference count %d needs %d bytes, %d available", n, int64(n)*4, c.Len())
	}

	var refs []bigfile.Key
	if n > 0 {
		refs = make([]bigfile.Key, n)
		for i := range refs {
			refs[i] = bigfile.Key(c.Uint32())
		}
	}
	if err := c.Err(); err != nil {
		return nil, nil, err
	}
	return refs, c.Rest(), nil
}
