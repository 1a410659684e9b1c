package bigfile

import (
	"cmp"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

// PathSeparator follows every segment of a rendered folder path.
const PathSeparator = "/"

const defaultPathCacheSize = 1024

// Tree is the folder hierarchy derived from the flat tables. Folders are
// addressed by id; links between them are lookups, never pointers.
type Tree struct {
	folders    []FolderEntry
	subfolders map[FolderID][]FolderID
	files      map[FolderID][]Key
	roots      []FolderID
	paths      *lru.Cache[FolderID, string]
}

// BuildTree derives parent -> subfolder and folder -> file adjacency. File
// keys are sorted by asset name, subfolders by folder name.
func BuildTree(folders []FolderEntry, files []FileEntry, pathCacheSize int) (*Tree, error) {
	if pathCacheSize <= 0 {
		pathCacheSize = defaultPathCacheSize
	}
	paths, err := lru.New[FolderID, string](pathCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "path cache")
	}

	t := &Tree{
		folders:    folders,
		subfolders: make(map[FolderID][]FolderID),
		files:      make(map[FolderID][]Key),
		paths:      paths,
	}

	for i := range folders {
		id := FolderID(i)
		if folders[i].IsRoot() {
			t.roots = append(t.roots, id)
			continue
		}
		t.subfolders[folders[i].Parent] = append(t.subfolders[folders[i].Parent], id)
	}
	for parent := range t.subfolders {
		slices.SortFunc(t.subfolders[parent], func(a, b FolderID) int {
			return cmp.Or(strings.Compare(folders[a].Name, folders[b].Name), cmp.Compare(a, b))
		})
	}

	names := make(map[Key]string, len(files))
	for i := range files {
		names[files[i].Key] = files[i].Name
		t.files[files[i].Folder] = append(t.files[files[i].Folder], files[i].Key)
	}
	for folder := range t.files {
		slices.SortFunc(t.files[folder], func(a, b Key) int {
			return cmp.Or(strings.Compare(names[a], names[b]), cmp.Compare(a, b))
		})
	}

	return t, nil
}

func (t *Tree) Len() int { return len(t.folders) }

func (t *Tree) Folder(id FolderID) (FolderEntry, bool) {
	if int(id) >= len(t.folders) {
		return FolderEntry{}, false
	}
	return t.folders[id], true
}

// Roots returns the folders without a parent.
func (t *Tree) Roots() []FolderID { return t.roots }

// ChildrenOf returns the keys of the files directly inside folder.
func (t *Tree) ChildrenOf(folder FolderID) []Key { return t.files[folder] }

func (t *Tree) Subfolders(folder FolderID) []FolderID { return t.subfolders[folder] }

// FullPath renders the names from the root down to folder, each followed by
// PathSeparator. The walk is bounded by the folder count so a corrupt parent
// chain yields ErrCycle instead of looping.
func (t *Tree) FullPath(folder FolderID) (string, error) {
	if p, ok := t.paths.Get(folder); ok {
		return p, nil
	}
	if int(folder) >= len(t.folders) {
		return "", newError("full path", ErrNotFound, NoKey, errors.Errorf("folder %d", folder))
	}

	var names []string
	cur := folder
	for steps := 0; cur != NoFolder; steps++ {
		if steps >= len(t.folders) {
			return "", newError("full path", ErrCycle, NoKey,
				errors.Errorf("folder %d: parent chain exceeds %d folders", folder, len(t.folders)))
		}
		if int(cur) >= len(t.folders) {
			return "", newError("full path", ErrNotFound, NoKey,
				errors.Errorf("folder %d: dangling parent %d", folder, cur))
		}
		names = append(names, t.folders[cur].Name)
		cur = t.folders[cur].Parent
	}

	var b strings.Builder
	for i := len(names) - 1; i >= 0; i-- {
		b.WriteString(names[i])
		b.WriteString(PathSeparator)
	}
	p := b.String()
	t.paths.Add(folder, p)
	return p, nil
}

// Siblings follows the on-disk FirstChild/NextSibling chain of folder. It is
// bounded the same way as FullPath.
func (t *Tree) Siblings(folder FolderID) ([]FolderID, error) {
	f, ok := t.Folder(folder)
	if !ok {
		return nil, newError("siblings", ErrNotFound, NoKey, errors.Errorf("folder %d", folder))
	}
	var out []FolderID
	for cur := f.FirstChild; cur != NoFolder; cur = t.folders[cur].NextSibling {
		if len(out) >= len(t.folders) {
			return nil, newError("siblings", ErrCycle, NoKey,
				errors.Errorf("folder %d: sibling chain exceeds %d folders", folder, len(t.folders)))
		}
		if int(cur) >= len(t.folders) {
			return nil, newError("siblings", ErrNotFound, NoKey,
				errors.Errorf("folder %d: dangling sibling %d", folder, cur))
		}
		out = append(out, cur)
	}
	return out, nil
}
