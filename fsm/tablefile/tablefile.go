// Package tablefile decodes transition table files written by the route
// table compiler.
//
// A table file carries the table variant, the cell width the compiler
// chose, the table itself, and the handler-index numbering of the routes:
//
//	variant: range
//	cell_bits: 16
//	routes:
//	  - {index: 0, name: home, path: /home}
//	cells: [-1, 1, 6, 1, 47, 47, ...]
//
// Instead of raw cells a file may list states, which are laid out with
// fsm.Builder:
//
//	states:
//	  - transitions: [{target: 1, bytes: "/"}]
//	  - accept: 0
//	    transitions: [{target: 1, ranges: ["a-z", "0-9"]}]
//
// YAML, JSON and TOML encodings carry the same fields.
package tablefile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a table file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

var (
	// ErrInvalidFile is wrapped by every content error Decode reports.
	ErrInvalidFile = errors.New("tablefile: invalid table file")

	// ErrUnknownFormat is returned for unsupported encodings.
	ErrUnknownFormat = errors.New("tablefile: unknown format")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// File is the decoded content of a table file.
type File struct {
	// Variant is "exact" or "range".
	Variant string `yaml:"variant" json:"variant" toml:"variant"`

	// CellBits is the cell width chosen by the compiler: 8, 16, 32 or 64.
	// Zero means 32.
	CellBits int `yaml:"cell_bits,omitempty" json:"cell_bits,omitempty" toml:"cell_bits,omitempty"`

	// Unsigned stores cells as unsigned integers. An 8-bit table must be
	// unsigned to match bytes 0x80 and up. Raw cells still write
	// NotAccepting as -1.
	Unsigned bool `yaml:"unsigned,omitempty" json:"unsigned,omitempty" toml:"unsigned,omitempty"`

	// Cells is the raw table. Exactly one of Cells and States is set.
	Cells []int64 `yaml:"cells,omitempty" json:"cells,omitempty" toml:"cells,omitempty"`

	// States describes the table state by state; index 0 is the root.
	States []StateDef `yaml:"states,omitempty" json:"states,omitempty" toml:"states,omitempty"`

	// Routes maps handler indexes to route names and templates.
	Routes []Route `yaml:"routes" json:"routes" toml:"routes"`
}

// StateDef describes one state of a table listed by states.
type StateDef struct {
	// Accept is the handler index completed by the state. Nil means the
	// state is not accepting.
	Accept *int `yaml:"accept,omitempty" json:"accept,omitempty" toml:"accept,omitempty"`

	Transitions []TransitionDef `yaml:"transitions,omitempty" json:"transitions,omitempty" toml:"transitions,omitempty"`
}

// TransitionDef describes one transition. Bytes lists literal bytes;
// Ranges lists inclusive ranges written "a-z". Both may be combined.
type TransitionDef struct {
	// Target is the index of the target state in File.States.
	Target int      `yaml:"target" json:"target" toml:"target"`
	Bytes  string   `yaml:"bytes,omitempty" json:"bytes,omitempty" toml:"bytes,omitempty"`
	Ranges []string `yaml:"ranges,omitempty" json:"ranges,omitempty" toml:"ranges,omitempty"`
}

// Route names the handler behind one handler index.
type Route struct {
	Index int    `yaml:"index" json:"index" toml:"index"`
	Name  string `yaml:"name,omitempty" json:"name,omitempty" toml:"name,omitempty"`

	// Path is the route template the compiler was given. It is kept for
	// diagnostics only.
	Path string `yaml:"path,omitempty" json:"path,omitempty" toml:"path,omitempty"`
}

// FormatFromPath infers the encoding from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
	}
}

// Load reads and decodes the table file at path.
func Load(path string) (*File, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tablefile: read %s: %w", path, err)
	}
	f, err := Decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Decode parses data in the given format and validates the result.
func Decode(data []byte, format Format) (*File, error) {
	var (
		f   File
		err error
	)
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &f)
	case FormatJSON:
		err = json.Unmarshal(data, &f)
	case FormatTOML:
		err = toml.Unmarshal(data, &f)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFile, format, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Encode writes f in the given format.
func Encode(f *File, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(f)
	case FormatJSON:
		return json.MarshalIndent(f, "", "  ")
	case FormatTOML:
		var b strings.Builder
		if err := toml.NewEncoder(&b).Encode(f); err != nil {
			return nil, err
		}
		return []byte(b.String()), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidFile, fmt.Sprintf(format, args...))
}

// Validate checks the file structure. The table itself is validated when
// it is built.
func (f *File) Validate() error {
	if _, err := f.variant(); err != nil {
		return invalidf("%v", err)
	}

	switch f.CellBits {
	case 0, 8, 16, 32, 64:
	default:
		return invalidf("cell_bits must be 8, 16, 32 or 64, got %d", f.CellBits)
	}

	switch {
	case len(f.Cells) > 0 && len(f.States) > 0:
		return invalidf("cells and states are mutually exclusive")
	case len(f.Cells) == 0 && len(f.States) == 0:
		return invalidf("table has neither cells nor states")
	}

	for i, s := range f.States {
		if s.Accept != nil && *s.Accept < 0 {
			return invalidf("state %d: accept %d is negative", i, *s.Accept)
		}
		for j, tr := range s.Transitions {
			if tr.Target < 0 || tr.Target >= len(f.States) {
				return invalidf("state %d transition %d: target %d out of range", i, j, tr.Target)
			}
			if _, err := tr.byteRanges(); err != nil {
				return invalidf("state %d transition %d: %v", i, j, err)
			}
		}
	}

	indexes := make(map[int]struct{}, len(f.Routes))
	names := make(map[string]struct{}, len(f.Routes))
	for _, r := range f.Routes {
		if r.Index < 0 {
			return invalidf("route %q: negative index %d", r.Name, r.Index)
		}
		if _, dup := indexes[r.Index]; dup {
			return invalidf("duplicate route index %d", r.Index)
		}
		indexes[r.Index] = struct{}{}
		if r.Name == "" {
			continue
		}
		if _, dup := names[r.Name]; dup {
			return invalidf("duplicate route name %q", r.Name)
		}
		names[r.Name] = struct{}{}
	}
	return nil
}

// RouteByIndex returns the route registered for a handler index.
func (f *File) RouteByIndex(index int) (Route, bool) {
	for _, r := range f.Routes {
		if r.Index == index {
			return r, true
		}
	}
	return Route{}, false
}
