// Package manifest handles luadump.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "luadump.toml"

// Defaults applied by Load.
const (
	DefaultOutputDir = "."
	DefaultExtension = ".luac"
	DefaultAddr      = "localhost:4568"
)

// Manifest represents a luadump.toml project configuration.
type Manifest struct {
	Project Project      `toml:"project"`
	Dump    DumpConfig   `toml:"dump"`
	Store   StoreConfig  `toml:"store"`
	Server  ServerConfig `toml:"server"`

	// Dir is the directory containing the luadump.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name"`
}

// DumpConfig configures chunk output.
type DumpConfig struct {
	Strip     bool   `toml:"strip"`
	OutputDir string `toml:"output-dir"`
	Extension string `toml:"extension"`
}

// StoreConfig points at an optional chunk store.
type StoreConfig struct {
	Path string `toml:"path"`
}

// ServerConfig configures the dump service.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// Default returns the configuration used when no luadump.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Dump.OutputDir == "" {
		m.Dump.OutputDir = DefaultOutputDir
	}
	if m.Dump.Extension == "" {
		m.Dump.Extension = DefaultExtension
	}
	if !strings.HasPrefix(m.Dump.Extension, ".") {
		m.Dump.Extension = "." + m.Dump.Extension
	}
	if m.Server.Addr == "" {
		m.Server.Addr = DefaultAddr
	}
}

// Load parses a luadump.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	m.applyDefaults()
	return &m, nil
}

// FindAndLoad walks up from startDir to find a luadump.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// resolve makes p absolute relative to the manifest directory.
func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// OutputPath returns where the chunk for the given input file goes: the
// input's base name up to its first dot, plus the configured extension,
// inside the output dir.
func (m *Manifest) OutputPath(input string) string {
	base := filepath.Base(input)
	if i := strings.Index(base, "."); i > 0 {
		base = base[:i]
	}
	return filepath.Join(m.resolve(m.Dump.OutputDir), base+m.Dump.Extension)
}

// StorePath returns the chunk store path resolved against the manifest
// directory, or "" when no store is configured.
func (m *Manifest) StorePath() string {
	return m.resolve(m.Store.Path)
}
