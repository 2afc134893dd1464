package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]JobDefinition)
	registryMu sync.RWMutex
)

// Register adds a job definition to the registry.
// Panics if a job with the same key is already registered.
func Register(def JobDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Info.Key]; exists {
		panic(fmt.Sprintf("job already registered: %s", def.Info.Key))
	}
	registry[def.Info.Key] = withDefaults(def)
}

// Put adds or replaces a job definition. Job files use it to override
// built-in jobs.
func Put(def JobDefinition) error {
	def = withDefaults(def)
	if err := def.Validate(); err != nil {
		return err
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[def.Info.Key] = def
	return nil
}

// withDefaults fills HeaderRow/StartRow and empty alias entries for fields.
func withDefaults(def JobDefinition) JobDefinition {
	if def.HeaderRow == 0 {
		def.HeaderRow = 1
	}
	if def.StartRow == 0 {
		def.StartRow = def.HeaderRow + 1
	}
	if def.Aliases == nil {
		def.Aliases = AliasTable{}
	}
	for _, f := range append(append([]FieldSpec(nil), def.KeyFields...), def.Fields...) {
		if _, ok := def.Aliases[f.Key]; !ok {
			def.Aliases[f.Key] = nil
		}
	}
	return def
}

// Get returns a job definition by key.
// Returns false if not found.
func Get(key string) (JobDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// Lookup is Get with an error naming the unknown key.
func Lookup(key string) (JobDefinition, error) {
	def, ok := Get(key)
	if !ok {
		return JobDefinition{}, fmt.Errorf("unknown job: %s", key)
	}
	return def, nil
}

// All returns all registered job definitions.
// Sorted by group then by key for consistent ordering.
func All() []JobDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]JobDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Info.Group != result[j].Info.Group {
			return result[i].Info.Group < result[j].Info.Group
		}
		return result[i].Info.Key < result[j].Info.Key
	})

	return result
}

// ByGroup returns all job definitions for a specific group.
// Sorted by key for consistent ordering.
func ByGroup(group string) []JobDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var result []JobDefinition
	for _, def := range registry {
		if def.Info.Group == group {
			result = append(result, def)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Info.Key < result[j].Info.Key
	})

	return result
}

// Groups returns all unique group names.
// Sorted alphabetically.
func Groups() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	seen := make(map[string]bool)
	for _, def := range registry {
		seen[def.Info.Group] = true
	}

	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}

	sort.Strings(groups)
	return groups
}

// JobCount returns the number of registered jobs.
func JobCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered jobs.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]JobDefinition)
}
