package projectconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultFileNames are looked up, in order, in the project root.
var DefaultFileNames = []string{"rosie.yml", "rosie.yaml"}

// File is a located config file. VersionMarker changes whenever the file
// is modified.
type File struct {
	Path          string
	Text          string
	VersionMarker int64
}

// Locator finds the config file of one project.
type Locator struct {
	Root  string
	Names []string
}

// NewLocator creates a locator using DefaultFileNames when names is empty.
func NewLocator(root string, names ...string) *Locator {
	if len(names) == 0 {
		names = DefaultFileNames
	}
	return &Locator{Root: root, Names: names}
}

// Locate returns the first config file found. A missing file is not an error.
func (l *Locator) Locate() (File, bool, error) {
	for _, name := range l.Names {
		path := filepath.Join(l.Root, name)
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return File{}, false, fmt.Errorf("stat %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return File{}, false, fmt.Errorf("reading %s: %w", path, err)
		}

		marker := info.ModTime().UnixNano()
		if marker == 0 {
			marker = 1
		}
		return File{Path: path, Text: string(data), VersionMarker: marker}, true, nil
	}
	return File{}, false, nil
}
