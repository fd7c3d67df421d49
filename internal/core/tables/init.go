// Package tables registers the report definitions with the core registry.
// Import it for its side effects; each report file registers itself in init().
package tables
