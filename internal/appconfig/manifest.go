// Package appconfig loads the application manifest that declares which
// app entry types exist and whether they are public.
//
// Manifests are written in CUE or YAML:
//
//	name: "forum"
//	zomes: [{
//		name: "posts"
//		entry_defs: [{id: "post"}, {id: "draft", visibility: "private"}]
//	}]
//
// A zome's id is its index in zomes; an entry def's id is its index in
// entry_defs. Both must fit in a byte.
package appconfig

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/sysval/internal/dht"
)

// maxIndexed is the number of zomes, or entry defs per zome, addressable by a u8 index.
const maxIndexed = 256

// Manifest is the application configuration consulted by entry-type checks.
type Manifest struct {
	Name  string `json:"name" yaml:"name"`
	Zomes []Zome `json:"zomes" yaml:"zomes"`
}

// Zome groups entry definitions.
type Zome struct {
	Name      string     `json:"name" yaml:"name"`
	EntryDefs []EntryDef `json:"entry_defs" yaml:"entry_defs"`
}

// EntryDef declares one app entry type.
type EntryDef struct {
	ID         string         `json:"id" yaml:"id"`
	Visibility dht.Visibility `json:"visibility,omitempty" yaml:"visibility,omitempty"`
}

// Private reports whether entries of this type stay off the DHT.
func (d EntryDef) Private() bool {
	return d.Visibility == dht.VisibilityPrivate
}

// ManifestError describes one problem in a manifest.
type ManifestError struct {
	Path    string
	Message string
}

func (e *ManifestError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Load reads a manifest from a .cue, .yaml or .yml file and validates it.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m *Manifest
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue":
		m, err = ParseCUE(data, path)
	case ".yaml", ".yml":
		m, err = ParseYAML(data)
	default:
		return nil, fmt.Errorf("manifest %s: unsupported extension %q", path, ext)
	}
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// ParseCUE decodes a manifest from CUE source. It does not validate.
func ParseCUE(data []byte, filename string) (*Manifest, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("compile manifest: %w", err)
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("manifest is not concrete: %w", err)
	}

	var m Manifest
	if err := value.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// ParseYAML decodes a manifest from YAML. It does not validate.
func ParseYAML(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// Validate normalises the manifest in place and reports every problem found.
// An entry def without a visibility becomes public.
func (m *Manifest) Validate() error {
	var errs []error
	fail := func(path, format string, args ...any) {
		errs = append(errs, &ManifestError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(m.Name) == "" {
		fail("name", "must not be empty")
	}
	if len(m.Zomes) > maxIndexed {
		fail("zomes", "at most %d zomes allowed, got %d", maxIndexed, len(m.Zomes))
	}

	zomeNames := make(map[string]bool, len(m.Zomes))
	for zi := range m.Zomes {
		z := &m.Zomes[zi]
		zpath := fmt.Sprintf("zomes[%d]", zi)
		if z.Name == "" {
			fail(zpath+".name", "must not be empty")
		} else if zomeNames[z.Name] {
			fail(zpath+".name", "duplicate zome %q", z.Name)
		}
		zomeNames[z.Name] = true

		if len(z.EntryDefs) > maxIndexed {
			fail(zpath+".entry_defs", "at most %d entry defs allowed, got %d", maxIndexed, len(z.EntryDefs))
		}
		ids := make(map[string]bool, len(z.EntryDefs))
		for di := range z.EntryDefs {
			d := &z.EntryDefs[di]
			dpath := fmt.Sprintf("%s.entry_defs[%d]", zpath, di)
			if d.ID == "" {
				fail(dpath+".id", "must not be empty")
			} else if ids[d.ID] {
				fail(dpath+".id", "duplicate entry def %q", d.ID)
			}
			ids[d.ID] = true

			switch d.Visibility {
			case "":
				d.Visibility = dht.VisibilityPublic
			case dht.VisibilityPublic, dht.VisibilityPrivate:
			default:
				fail(dpath+".visibility", "must be %q or %q, got %q", dht.VisibilityPublic, dht.VisibilityPrivate, d.Visibility)
			}
		}
	}
	return errors.Join(errs...)
}

// EntryDef looks up the entry def an app entry type points at.
// Returns ok=false when the zome or entry def index is not declared.
func (m *Manifest) EntryDef(_ context.Context, t dht.AppEntryType) (EntryDef, bool, error) {
	if int(t.ZomeID) >= len(m.Zomes) {
		return EntryDef{}, false, nil
	}
	defs := m.Zomes[t.ZomeID].EntryDefs
	if int(t.ID) >= len(defs) {
		return EntryDef{}, false, nil
	}
	return defs[t.ID], true, nil
}

// EntryDefCount returns the number of entry defs across every zome.
func (m *Manifest) EntryDefCount() int {
	n := 0
	for _, z := range m.Zomes {
		n += len(z.EntryDefs)
	}
	return n
}
