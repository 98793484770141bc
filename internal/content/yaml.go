package content

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed builtin.yml
var builtinYAML []byte

// Builtin returns the scenes and phrases shipped with kaiwa.
func Builtin() (Library, error) {
	lib, err := DecodeYAML(bytes.NewReader(builtinYAML))
	if err != nil {
		return Library{}, fmt.Errorf("builtin content: %w", err)
	}
	return lib, nil
}

// DecodeYAML reads a library document.
func DecodeYAML(r io.Reader) (Library, error) {
	var lib Library
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&lib); err != nil && err != io.EOF {
		return Library{}, fmt.Errorf("failed to decode content: %w", err)
	}
	normalize(&lib)
	return lib, nil
}

// LoadFile reads a .yml/.yaml library, a scene .csv or a phrase .xlsx.
func LoadFile(path string) (Library, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		f, err := os.Open(path)
		if err != nil {
			return Library{}, err
		}
		defer f.Close() //nolint:errcheck
		lib, err := DecodeYAML(f)
		if err != nil {
			return Library{}, fmt.Errorf("%s: %w", path, err)
		}
		return lib, nil
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return Library{}, err
		}
		defer f.Close() //nolint:errcheck
		scenes, err := ParseScenesCSV(f)
		if err != nil {
			return Library{}, fmt.Errorf("%s: %w", path, err)
		}
		return Library{Scenes: scenes}, nil
	case ".xlsx":
		groups, err := LoadPhrasesXLSX(path)
		if err != nil {
			return Library{}, fmt.Errorf("%s: %w", path, err)
		}
		return Library{Groups: groups}, nil
	default:
		return Library{}, fmt.Errorf("unsupported content file %q", path)
	}
}

// Supported reports whether LoadFile understands path.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml", ".csv", ".xlsx":
		return true
	}
	return false
}

// LoadDir merges every supported file in dir, in name order, over the
// builtin library.
func LoadDir(dir string) (Library, error) {
	lib, err := Builtin()
	if err != nil {
		return Library{}, err
	}
	if dir == "" {
		return lib, nil
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return lib, nil
	}
	if err != nil {
		return Library{}, fmt.Errorf("failed to read content dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && Supported(e.Name()) && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		other, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return Library{}, err
		}
		lib.Merge(other)
	}
	if err := lib.Validate(); err != nil {
		return Library{}, err
	}
	return lib, nil
}

// normalize fills defaults left out of hand-written files.
func normalize(lib *Library) {
	for i := range lib.Scenes {
		s := &lib.Scenes[i]
		for j := range s.Turns {
			t := &s.Turns[j]
			if t.Speaker == "" {
				t.Speaker = SpeakerAI
			}
			if t.ID == "" {
				t.ID = fmt.Sprintf("%s_%d", s.ID, j+1)
			}
			for k := range t.Responses {
				r := &t.Responses[k]
				if r.Level == "" {
					r.Level = LevelBeginner
				}
				if r.ID == "" {
					r.ID = fmt.Sprintf("%s-%c%d", t.ID, r.Level[0], k+1)
				}
			}
		}
	}
}
