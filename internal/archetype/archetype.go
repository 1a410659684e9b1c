// Package archetype maps asset type codes to typed payload decoders.
//
// Decoders for specific asset kinds (meshes, textures, sound banks, ...) live
// outside this package and plug in through Registration. Every type code
// without a registration resolves to Passthrough, so any key can be loaded
// without callers special-casing unknown types.
package archetype

import (
	"fmt"
	"maps"
	"slices"

	"github.com/mvaleed/bigfile/internal/bigfile"
)

// Archetype is the in-memory decoding of one asset's payload. Parse receives
// the bytes after the reference preamble. The slice may alias a memory map,
// so implementations that keep bytes must copy them. Release returns the
// payload to its empty state.
type Archetype interface {
	Parse(data []byte) error
	Release()
}

type Constructor func() Archetype

type Registration struct {
	Code bigfile.TypeCode
	Name string
	New  Constructor
}

type entry struct {
	name string
	new  Constructor
}

// Registry is immutable once built and safe to share.
type Registry struct {
	entries map[bigfile.TypeCode]entry
}

// NewRegistry builds a registry. A later registration for the same code
// replaces an earlier one; a nil constructor registers the name only.
func NewRegistry(regs ...Registration) *Registry {
	r := &Registry{entries: make(map[bigfile.TypeCode]entry, len(regs))}
	for _, reg := range regs {
		ctor := reg.New
		if ctor == nil {
			ctor = NewPassthrough
		}
		r.entries[reg.Code] = entry{name: reg.Name, new: ctor}
	}
	return r
}

// New allocates an empty payload for code.
func (r *Registry) New(code bigfile.TypeCode) Archetype {
	if e, ok := r.entries[code]; ok {
		return e.new()
	}
	return NewPassthrough()
}

func (r *Registry) Known(code bigfile.TypeCode) bool {
	_, ok := r.entries[code]
	return ok
}

func (r *Registry) Name(code bigfile.TypeCode) string {
	if e, ok := r.entries[code]; ok && e.name != "" {
		return e.name
	}
	return fmt.Sprintf("type_%s", code)
}

// Codes lists the registered type codes in ascending order.
func (r *Registry) Codes() []bigfile.TypeCode {
	return slices.Sorted(maps.Keys(r.entries))
}

// Passthrough accepts any payload and stores nothing.
type Passthrough struct{}

func NewPassthrough() Archetype { return Passthrough{} }

func (Passthrough) Parse([]byte) error { return nil }

func (Passthrough) Release() {}

// Blob keeps a private copy of the payload body.
type Blob struct {
	Data []byte
}

func NewBlob() Archetype { return &Blob{} }

func (b *Blob) Parse(data []byte) error {
	b.Data = append(b.Data[:0], data...)
	return nil
}

func (b *Blob) Release() { b.Data = nil }

var (
	_ Archetype = Passthrough{}
	_ Archetype = (*Blob)(nil)
)
