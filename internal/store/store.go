// Package store tracks the load state of every asset in an open archive.
//
// An Object exists for every file entry from the moment metadata is loaded
// until Close. Load reads an asset's payload, strips the reference preamble
// and hands the rest to the asset's archetype.
//
// Unload releases unconditionally: one Unload undoes any number of Loads.
// RefCount only reports how often the asset was requested while loaded.
//
// A Store is not safe for concurrent use.
package store

import (
	"slices"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mvaleed/bigfile/internal/archetype"
	"github.com/mvaleed/bigfile/internal/bigfile"
)

// Object is the runtime record of one asset.
type Object struct {
	Key      bigfile.Key
	Type     bigfile.TypeCode
	Loaded   bool
	RefCount int
	Refs     []bigfile.Key // Set only while loaded
	Payload  archetype.Archetype
}

type options struct {
	log           *zap.Logger
	containerOpts []bigfile.Option
}

type Option func(*options)

func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithContainerOptions forwards options to bigfile.Open.
func WithContainerOptions(opts ...bigfile.Option) Option {
	return func(o *options) { o.containerOpts = append(o.containerOpts, opts...) }
}

type Store struct {
	container *bigfile.Container
	registry  *archetype.Registry
	objects   map[bigfile.Key]*Object
	log       *zap.Logger
	owned     bool
}

// Open opens the archive at path, loads its metadata and allocates an
// unloaded object for every file entry. Close releases the archive.
func Open(path string, reg *archetype.Registry, opts ...Option) (*Store, error) {
	o := buildOptions(opts)
	c, err := bigfile.Open(path, o.containerOpts...)
	if err != nil {
		return nil, err
	}
	if err := c.LoadMetadata(); err != nil {
		c.Close()
		return nil, err
	}
	s, err := newStore(c, reg, o)
	if err != nil {
		c.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// New builds a store over a container whose metadata is already loaded. The
// caller keeps ownership of c.
func New(c *bigfile.Container, reg *archetype.Registry, opts ...Option) (*Store, error) {
	return newStore(c, reg, buildOptions(opts))
}

func buildOptions(opts []Option) options {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newStore(c *bigfile.Container, reg *archetype.Registry, o options) (*Store, error) {
	if !c.MetadataLoaded() {
		return nil, errors.New("store: container metadata not loaded")
	}
	if reg == nil {
		reg = archetype.NewRegistry()
	}

	entries := c.Entries()
	objects := make(map[bigfile.Key]*Object, len(entries))
	for i := range entries {
		e := &entries[i]
		if !e.Key.Valid() {
			continue
		}
		if _, dup := objects[e.Key]; dup {
			continue
		}
		objects[e.Key] = &Object{
			Key:     e.Key,
			Type:    e.Type,
			Payload: reg.New(e.Type),
		}
	}

	return &Store{
		container: c,
		registry:  reg,
		objects:   objects,
		log:       o.log,
	}, nil
}

func (s *Store) Container() *bigfile.Container { return s.container }

func (s *Store) Registry() *archetype.Registry { return s.registry }

// Len is the number of objects.
func (s *Store) Len() int { return len(s.objects) }

// IsKeyValid reports whether key has a file entry with a resolvable payload.
func (s *Store) IsKeyValid(key bigfile.Key) bool {
	return s.container.IsKeyValid(key)
}

// Load parses the asset for key. It reports whether any parsing happened:
// loading an already loaded asset only bumps its RefCount and returns false.
func (s *Store) Load(key bigfile.Key) (bool, error) {
	obj, ok := s.objects[key]
	if !ok {
		return false, bigfile.KeyError("load", bigfile.ErrNotFound, key, errors.New("no object"))
	}
	if obj.Loaded {
		obj.RefCount++
		return false, nil
	}

	data, err := s.container.Payload(key)
	if err != nil {
		return false, err
	}
	refs, body, err := ExtractReferences(data)
	if err != nil {
		return false, bigfile.KeyError("load", bigfile.ErrParse, key, err)
	}
	if err := obj.Payload.Parse(body); err != nil {
		obj.Payload.Release()
		return false, bigfile.KeyError("load", bigfile.ErrParse, key, err)
	}

	obj.Loaded = true
	obj.RefCount = 1
	obj.Refs = refs
	s.log.Debug("loaded asset",
		zap.Stringer("key", key),
		zap.String("type", s.registry.Name(obj.Type)),
		zap.Int("refs", len(refs)),
		zap.Int("bytes", len(data)))
	return true, nil
}

// Unload releases the asset regardless of how many times it was loaded.
// Unloading an asset that is not loaded does nothing.
func (s *Store) Unload(key bigfile.Key) error {
	obj, ok := s.objects[key]
	if !ok {
		return bigfile.KeyError("unload", bigfile.ErrNotFound, key, errors.New("no object"))
	}
	if !obj.Loaded {
		return nil
	}
	obj.Payload.Release()
	obj.Loaded = false
	obj.RefCount = 0
	obj.Refs = nil
	s.log.Debug("unloaded asset", zap.Stringer("key", key))
	return nil
}

// Object returns a snapshot of the record for key. The Payload is shared.
func (s *Store) Object(key bigfile.Key) (Object, bool) {
	obj, ok := s.objects[key]
	if !ok {
		return Object{}, false
	}
	snap := *obj
	snap.Refs = slices.Clone(obj.Refs)
	return snap, true
}

// References returns the reference list of a loaded asset, nil otherwise.
func (s *Store) References(key bigfile.Key) []bigfile.Key {
	if obj, ok := s.objects[key]; ok && obj.Loaded {
		return obj.Refs
	}
	return nil
}

func (s *Store) TypeOf(key bigfile.Key) (bigfile.TypeCode, bool) {
	obj, ok := s.objects[key]
	if !ok {
		return 0, false
	}
	return obj.Type, true
}

// LoadedKeys lists the currently loaded keys in ascending order.
func (s *Store) LoadedKeys() []bigfile.Key {
	var keys []bigfile.Key
	for k, obj := range s.objects {
		if obj.Loaded {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// Close releases every payload and, when the store opened the archive,
// closes it.
func (s *Store) Close() error {
	for _, obj := range s.objects {
		if obj.Loaded {
			obj.Payload.Release()
			obj.Loaded = false
			obj.Refs = nil
			obj.RefCount = 0
		}
	}
	if !s.owned {
		return nil
	}
	return s.container.Close()
}
