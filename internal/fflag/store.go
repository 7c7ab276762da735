package fflag

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.yaml.in/yaml/v3"
)

// Set maps flag names to values.
type Set map[string]Value

// Clone returns a copy of s.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Names returns the flag names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Store is the persisted flag set backed by a YAML file.
type Store struct {
	path  string
	flags Set
}

// Load reads the store at path. A missing file is an empty store.
func Load(path string) (*Store, error) {
	s := &Store{path: path, flags: Set{}}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s.flags); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if s.flags == nil {
		s.flags = Set{}
	}
	return s, nil
}

// Flags returns a copy of the stored flags.
func (s *Store) Flags() Set { return s.flags.Clone() }

// Get returns one flag.
func (s *Store) Get(name string) (Value, bool) {
	v, ok := s.flags[name]
	return v, ok
}

// Set stores one flag and saves.
func (s *Store) Set(name string, v Value) error {
	if !validName(name) {
		return fmt.Errorf("invalid flag name %q", name)
	}
	s.flags[name] = v
	return s.save()
}

// Unset removes one flag and saves. Removing an absent flag is not an error.
func (s *Store) Unset(name string) error {
	if _, ok := s.flags[name]; !ok {
		return nil
	}
	delete(s.flags, name)
	return s.save()
}

// Merge stores every flag in set and saves once.
func (s *Store) Merge(set Set) error {
	for k, v := range set {
		s.flags[k] = v
	}
	return s.save()
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(s.path), err)
	}
	data, err := yaml.Marshal(s.flags)
	if err != nil {
		return fmt.Errorf("encoding flags: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	return nil
}

// Renderers lists the accepted renderer names.
var Renderers = []string{"D3D11", "D3D11FL10", "Vulkan", "OpenGL"}

// ApplyRenderer returns a copy of flags with the graphics-API flags set so
// that exactly renderer is preferred and every other API is disabled.
func ApplyRenderer(flags Set, renderer string) Set {
	out := flags.Clone()
	for _, r := range Renderers {
		out["FFlagDebugGraphicsPrefer"+r] = Bool(r == renderer)
		out["FFlagDebugGraphicsDisable"+r] = Bool(r != renderer)
	}
	out["D3D11FL10"] = Bool(renderer == "D3D11FL10")
	return out
}

// Encode renders flags as ClientAppSettings JSON: sorted keys, four-space
// indentation.
func Encode(flags Set) ([]byte, error) {
	if flags == nil {
		flags = Set{}
	}
	return json.MarshalIndent(flags, "", "    ")
}

// WriteFile writes flags as JSON to path, creating parent directories.
func WriteFile(path string, flags Set) error {
	data, err := Encode(flags)
	if err != nil {
		return fmt.Errorf("encoding flags: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
