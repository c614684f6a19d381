// Package definitions reads workflow definitions from YAML or JSON documents
// and publishes them to a definition store.
package definitions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/internal/validation"
	"github.com/rendis/flowgraph/pkg/schema"
)

// Format names a definition document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatOf picks the format from a file extension. Unknown extensions are YAML,
// which also accepts JSON documents.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Parse decodes one definition. Unknown fields are rejected so typos in
// property names surface as errors instead of silently empty graphs.
func Parse(data []byte, format Format) (*schema.WorkflowType, error) {
	raw := data
	if format == FormatYAML {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "invalid YAML definition").WithCause(err)
		}
		if doc == nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "definition document is empty")
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "definition is not representable as JSON").WithCause(err)
		}
		raw = converted
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var def schema.WorkflowType
	if err := dec.Decode(&def); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "invalid definition").WithCause(err)
	}
	return &def, nil
}

// LoadFile reads and parses the definition at path.
func LoadFile(path string) (*schema.WorkflowType, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition %s: %w", path, err)
	}
	def, err := Parse(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// LoadDir parses every .yaml, .yml and .json file directly under dir, in name
// order.
func LoadDir(dir string) ([]*schema.WorkflowType, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read definitions dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	defs := make([]*schema.WorkflowType, 0, len(names))
	seen := make(map[string]string, len(names))
	for _, name := range names {
		def, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[def.ID]; dup {
			return nil, schema.NewErrorf(schema.ErrCodeConflict,
				"definition %q declared in both %s and %s", def.ID, prev, name)
		}
		seen[def.ID] = name
		defs = append(defs, def)
	}
	return defs, nil
}

// Publish validates def and saves it. Invalid definitions are not stored.
func Publish(ctx context.Context, defs store.DefinitionStore, v validation.Validator, def *schema.WorkflowType) error {
	if err := v.ValidateDefinition(def); err != nil {
		return err
	}
	if err := defs.SaveDefinition(ctx, def); err != nil {
		return fmt.Errorf("save definition %s: %w", def.ID, err)
	}
	return nil
}
