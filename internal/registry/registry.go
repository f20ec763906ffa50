// Package registry holds the component registry: per component a default
// configuration object and an optional JSON Schema (draft 2020-12) that
// stored values must satisfy.
package registry

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// numbers decode as json.Number so large integers survive a round trip
var json = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// file is the on-disk layout of registry.json
type file struct {
	Components map[string]struct {
		Default jsoniter.RawMessage `json:"default"`
		Schema  jsoniter.RawMessage `json:"schema"`
	} `json:"components"`
}

type component struct {
	// defaultJSON is decoded on every call so callers always get a private copy
	defaultJSON []byte
	schema      *jsonschema.Schema
}

// Registry is safe for concurrent use; Reload swaps the component table
// atomically.
type Registry struct {
	path       string
	mu         sync.RWMutex
	components map[string]*component
}

// New returns an empty registry that is not backed by a file
func New() *Registry {
	return &Registry{components: map[string]*component{}}
}

// Load reads the registry at path. A missing file gives an empty registry.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path, components: map[string]*component{}}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path is the file the registry is read from
func (r *Registry) Path() string {
	return r.path
}

// Reload re-reads the registry file. On error the current table is kept.
func (r *Registry) Reload() error {
	if r.path == "" {
		return nil
	}

	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		r.swap(map[string]*component{})
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "error reading registry %s", r.path)
	}

	components, err := parse(data)
	if err != nil {
		return errors.Wrapf(err, "error loading registry %s", r.path)
	}
	r.swap(components)
	return nil
}

// Set replaces the registry content with data in registry.json format
func (r *Registry) Set(data []byte) error {
	components, err := parse(data)
	if err != nil {
		return err
	}
	r.swap(components)
	return nil
}

func (r *Registry) swap(components map[string]*component) {
	r.mu.Lock()
	r.components = components
	r.mu.Unlock()
}

func parse(data []byte) (map[string]*component, error) {
	components := map[string]*component{}
	if len(bytes.TrimSpace(data)) == 0 {
		return components, nil
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "invalid registry json")
	}

	for key, entry := range f.Components {
		c := &component{}

		if isPresent(entry.Default) {
			var probe interface{}
			if err := json.Unmarshal(entry.Default, &probe); err != nil {
				return nil, errors.Wrapf(err, "component %s: invalid default", key)
			}
			if _, ok := probe.(map[string]interface{}); !ok {
				return nil, errors.Errorf("component %s: default must be an object", key)
			}
			c.defaultJSON = []byte(entry.Default)
		}

		if isPresent(entry.Schema) {
			schema, err := compile(key, entry.Schema)
			if err != nil {
				return nil, err
			}
			c.schema = schema
		}

		components[key] = c
	}
	return components, nil
}

func isPresent(raw jsoniter.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func compile(key string, raw []byte) (*jsonschema.Schema, error) {
	url := fmt.Sprintf("mem://registry/%s.json", key)

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, errors.Wrapf(err, "component %s: invalid schema", key)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, errors.Wrapf(err, "component %s: invalid schema", key)
	}
	return schema, nil
}

// Keys returns the registered component keys, sorted
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.components))
	for k := range r.components {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key is registered
func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.components[key]
	return ok
}

// Default returns a fresh copy of the component default, or an empty object
func (r *Registry) Default(key string) map[string]interface{} {
	r.mu.RLock()
	c, ok := r.components[key]
	r.mu.RUnlock()

	out := map[string]interface{}{}
	if !ok || c.defaultJSON == nil {
		return out
	}
	// already validated as an object in parse
	_ = json.Unmarshal(c.defaultJSON, &out)
	return out
}

// Validate checks value against the component schema. It returns nil when
// the value is valid or the component has no schema, otherwise one message
// per failing location formatted as "<instance pointer>: <message>".
func (r *Registry) Validate(key string, value interface{}) []string {
	r.mu.RLock()
	c, ok := r.components[key]
	r.mu.RUnlock()

	if !ok || c.schema == nil {
		return nil
	}

	err := c.schema.Validate(value)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []string{"/: " + err.Error()}
	}

	var leaves []*jsonschema.ValidationError
	collectLeaves(verr, &leaves)
	sort.SliceStable(leaves, func(i, j int) bool {
		return leaves[i].InstanceLocation < leaves[j].InstanceLocation
	})

	messages := make([]string, 0, len(leaves))
	for _, leaf := range leaves {
		loc := leaf.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		messages = append(messages, fmt.Sprintf("%s: %s", loc, strings.TrimSpace(leaf.Message)))
	}
	return messages
}

func collectLeaves(e *jsonschema.ValidationError, out *[]*jsonschema.ValidationError) {
	if len(e.Causes) == 0 {
		*out = append(*out, e)
		return
	}
	for _, cause := range e.Causes {
		collectLeaves(cause, out)
	}
}
