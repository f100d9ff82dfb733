// ABOUTME: Loads dc files into a Definition and fingerprints their contents.
// ABOUTME: The hash is a pure function of file order, names, and bytes.

package schema

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
)

// File is one dc file that contributes to the schema fingerprint.
type File struct {
	Name string
	Body []byte
}

// Definition is the full set of dc files, in configuration order.
// Order matters: the same files listed in a different order produce a
// different fingerprint, matching how clients and servers must agree on the
// exact schema layout.
type Definition struct {
	files []File
}

// LoadFiles reads the given dc file paths into a Definition.
// A missing or unreadable file is an error; the caller treats it as fatal.
func LoadFiles(paths []string) (*Definition, error) {
	def := &Definition{files: make([]File, 0, len(paths))}
	for _, path := range paths {
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading dc file %q: %w", path, err)
		}
		def.files = append(def.files, File{Name: filepath.Base(path), Body: body})
	}
	return def, nil
}

// Files returns the number of dc files in the definition.
func (d *Definition) Files() int {
	return len(d.files)
}

// Hash computes the 32-bit schema fingerprint.
// It is deterministic across processes and hosts: identical file order, names,
// and contents always produce the identical value.
func (d *Definition) Hash() uint32 {
	h := fnv.New32a()
	for _, f := range d.files {
		h.Write([]byte(f.Name))
		h.Write([]byte{0})
		h.Write(f.Body)
		h.Write([]byte{0})
	}
	return h.Sum32()
}
