package callenc

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

//go:embed abi/*.json
var builtinABIs embed.FS

var (
	registryMu   sync.RWMutex
	registry     map[string]*Schema
	registryOnce sync.Once
)

func loadBuiltins() {
	registry = make(map[string]*Schema)
	entries, err := builtinABIs.ReadDir("abi")
	if err != nil {
		panic(fmt.Sprintf("read embedded abis: %v", err))
	}
	for _, e := range entries {
		data, err := builtinABIs.ReadFile(path.Join("abi", e.Name()))
		if err != nil {
			panic(fmt.Sprintf("read embedded abi %s: %v", e.Name(), err))
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		s, err := ParseSchema(name, data)
		if err != nil {
			panic(err)
		}
		registry[name] = s
	}
}

// Lookup returns a registered schema by contract name.
func Lookup(name string) (*Schema, error) {
	registryOnce.Do(loadBuiltins)
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, name)
	}
	return s, nil
}

// MustLookup is Lookup for built-in schemas.
func MustLookup(name string) *Schema {
	s, err := Lookup(name)
	if err != nil {
		panic(err)
	}
	return s
}

// Register parses and adds a schema, replacing any previous one with the
// same name.
func Register(name string, jsonABI []byte) (*Schema, error) {
	registryOnce.Do(loadBuiltins)
	s, err := ParseSchema(name, jsonABI)
	if err != nil {
		return nil, err
	}
	registryMu.Lock()
	registry[name] = s
	registryMu.Unlock()
	return s, nil
}

// Names lists registered schemas in sorted order.
func Names() []string {
	registryOnce.Do(loadBuiltins)
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
