package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const manifestSuffix = ".plugin.json"

var ErrUnknownCheckType = errors.New("unknown check type")

// LoadError names the manifest file that could not be loaded. Load errors
// are fatal at startup.
type LoadError struct {
	File   string
	Reason string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("plugin load failed for %s: %s", e.File, e.Reason)
}

var (
	factoryMu sync.Mutex
	factories = map[string]Factory{}
)

// RegisterFactory makes a builtin implementation available to manifest
// entrypoint resolution. Called from init in the builtin package.
func RegisterFactory(entrypoint string, f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if _, dup := factories[entrypoint]; dup {
		panic(fmt.Sprintf("plugin: duplicate factory %q", entrypoint))
	}
	factories[entrypoint] = f
}

func lookupFactory(entrypoint string) (Factory, bool) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	f, ok := factories[entrypoint]
	return f, ok
}

// Registry maps check-type names to descriptors. Read-only after Load,
// safe to share across workers without locking.
type Registry struct {
	log   *zap.Logger
	descs map[string]*Descriptor
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		log:   log.With(zap.String("component", "plugin.registry")),
		descs: map[string]*Descriptor{},
	}
}

// Load scans the given directories for *.plugin.json manifests and resolves
// each entrypoint against the registered factory set. Duplicate check-type
// names across directories follow directory precedence: later directories
// override earlier ones, with a warning, never silently.
func (r *Registry) Load(dirs []string) error {
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return &LoadError{File: dir, Reason: fmt.Sprintf("read dir: %v", err)}
		}

		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), manifestSuffix) {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)

		for _, name := range names {
			path := filepath.Join(dir, name)
			desc, err := loadManifest(path)
			if err != nil {
				return err
			}
			if prev, dup := r.descs[desc.Name]; dup {
				r.log.Warn("check type overridden by later plugin directory",
					zap.String("check_type", desc.Name),
					zap.String("previous", prev.Source),
					zap.String("override", desc.Source),
				)
			}
			r.descs[desc.Name] = desc
		}
	}

	r.log.Info("plugins loaded", zap.Int("count", len(r.descs)))
	return nil
}

func loadManifest(path string) (*Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Reason: err.Error()}
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &LoadError{File: path, Reason: fmt.Sprintf("bad manifest: %v", err)}
	}
	if m.Name == "" {
		return nil, &LoadError{File: path, Reason: "manifest missing name"}
	}
	if m.Entrypoint == "" {
		return nil, &LoadError{File: path, Reason: "manifest missing entrypoint"}
	}
	f, ok := lookupFactory(m.Entrypoint)
	if !ok {
		return nil, &LoadError{File: path, Reason: fmt.Sprintf("entrypoint %q not registered", m.Entrypoint)}
	}

	impl := f()
	schema := m.Params
	if len(schema.Fields) == 0 {
		schema = impl.Schema()
	}
	return &Descriptor{
		Name:    m.Name,
		Version: m.Version,
		Source:  path,
		Schema:  schema,
		Impl:    impl,
	}, nil
}

// Resolve returns the descriptor for a check type.
func (r *Registry) Resolve(checkType string) (*Descriptor, error) {
	d, ok := r.descs[checkType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCheckType, checkType)
	}
	return d, nil
}

// Types returns the loaded check-type names, sorted.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.descs))
	for name := range r.descs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
