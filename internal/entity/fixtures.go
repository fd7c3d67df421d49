package entity

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// fixtureFile is the on-disk YAML layout of a content graph snapshot.
//
//	entities:
//	  - id: 10
//	    kind: node
//	    type: evento
//	    title: Feria regional
//	    fields:
//	      field_actividad: [{target_id: 5}]
//	      field_participante: []
type fixtureFile struct {
	Entities []fixtureEntity `yaml:"entities"`
}

type fixtureEntity struct {
	ID        int64             `yaml:"id"`
	Kind      Kind              `yaml:"kind"`
	Type      string            `yaml:"type"`
	Title     string            `yaml:"title"`
	Published *bool             `yaml:"published,omitempty"`
	Parent    int64             `yaml:"parent,omitempty"`
	Weight    int               `yaml:"weight,omitempty"`
	Fields    map[string][]Item `yaml:"fields,omitempty"`
}

// ParseFixtures decodes one YAML document of entities.
func ParseFixtures(data []byte) ([]*Entity, error) {
	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}

	out := make([]*Entity, 0, len(f.Entities))
	seen := make(map[int64]bool, len(f.Entities))
	for i, fe := range f.Entities {
		if fe.ID <= 0 {
			return nil, fmt.Errorf("entity #%d: id must be positive", i)
		}
		if seen[fe.ID] {
			return nil, fmt.Errorf("entity #%d: duplicate id %d", i, fe.ID)
		}
		seen[fe.ID] = true

		kind := fe.Kind
		if kind == "" {
			kind = KindNode
		}
		if kind != KindNode && kind != KindTerm {
			return nil, fmt.Errorf("entity %d: unknown kind %q", fe.ID, kind)
		}
		if fe.Type == "" {
			return nil, fmt.Errorf("entity %d: type is required", fe.ID)
		}

		published := true
		if fe.Published != nil {
			published = *fe.Published
		}
		fields := fe.Fields
		if fields == nil {
			fields = map[string][]Item{}
		}
		for name, items := range fields {
			if items == nil {
				fields[name] = []Item{}
			}
		}

		out = append(out, &Entity{
			ID:        fe.ID,
			Kind:      kind,
			Type:      fe.Type,
			Title:     fe.Title,
			Published: published,
			Parent:    fe.Parent,
			Weight:    fe.Weight,
			Fields:    fields,
		})
	}
	return out, nil
}

// LoadFixtures reads a YAML file, or every .yaml/.yml file of a directory in
// name order, and returns the decoded entities.
func LoadFixtures(path string) ([]*Entity, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var files []string
	if st.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			name := e.Name()
			if !e.IsDir() && (strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
				files = append(files, filepath.Join(path, name))
			}
		}
		sort.Strings(files)
	} else {
		files = []string{path}
	}

	var all []*Entity
	seen := make(map[int64]string)
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		entities, err := ParseFixtures(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		for _, e := range entities {
			if prev, ok := seen[e.ID]; ok {
				return nil, fmt.Errorf("%s: id %d already defined in %s", file, e.ID, prev)
			}
			seen[e.ID] = file
		}
		all = append(all, entities...)
	}
	return all, nil
}
