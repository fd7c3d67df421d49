package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]ReportDefinition)
	registryMu sync.RWMutex
)

// Register adds a report definition to the registry.
// Panics if a report with the same key is already registered.
func Register(def ReportDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Info.Key]; exists {
		panic(fmt.Sprintf("report already registered: %s", def.Info.Key))
	}

	// Populate Columns from the typed columns if not set
	if len(def.Info.Columns) == 0 && len(def.Columns) > 0 {
		def.Info.Columns = def.ColumnNames()
	}

	registry[def.Info.Key] = def
}

// Get returns a report definition by key.
// Returns false if not found.
func Get(key string) (ReportDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// All returns all registered report definitions.
// Sorted by group then by key for consistent ordering.
func All() []ReportDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]ReportDefinition, 0, len(registry))
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

// ByGroup returns all report definitions for a specific group.
func ByGroup(group string) []ReportDefinition {
	var result []ReportDefinition
	for _, def := range All() {
		if def.Info.Group == group {
			result = append(result, def)
		}
	}
	return result
}

// Groups returns all unique group names, sorted.
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

// ReportCount returns the number of registered reports.
func ReportCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered reports.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]ReportDefinition)
}
