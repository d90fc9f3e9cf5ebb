package module

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Manifest field names.
const (
	FieldName             = "name"
	FieldVersion          = "version"
	FieldLanguage         = "language"
	FieldDescription      = "description"
	FieldDependencies     = "dependencies"
	FieldSoftDependencies = "softDependencies"
	FieldAuthors          = "authors"
	FieldAdditional       = "additional"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Document is a decoded manifest or a nested object inside one.
type Document map[string]any

// String returns the value stored under key when it is a string.
func (d Document) String(key string) (string, bool) {
	value, ok := d[key].(string)
	return value, ok
}

// StringOr returns the trimmed string under key, or def when it is absent or blank.
func (d Document) StringOr(key, def string) string {
	if value, ok := d.String(key); ok {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return def
}

// Object returns the nested document stored under key.
func (d Document) Object(key string) (Document, bool) {
	return asDocument(d[key])
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	clone := make(Document, len(d))
	for key, value := range d {
		clone[key] = cloneValue(value)
	}
	return clone
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case Document:
		return typed.Clone()
	case map[string]any:
		return Document(typed).Clone()
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return value
	}
}

func asDocument(value any) (Document, bool) {
	switch typed := value.(type) {
	case Document:
		return typed, true
	case map[string]any:
		return Document(typed), true
	default:
		return nil, false
	}
}

// Descriptor is the immutable metadata parsed from a module manifest.
type Descriptor struct {
	Name             string
	Version          string
	Language         string
	Description      string
	Dependencies     []string
	SoftDependencies []string
	Authors          []string
	// Additional is the language specific part of the manifest. The Manager
	// never reads it; interpreters do.
	Additional Document
}

// Clone returns a copy that shares no slices or maps with d.
func (d Descriptor) Clone() Descriptor {
	clone := d
	clone.Dependencies = cloneStrings(d.Dependencies)
	clone.SoftDependencies = cloneStrings(d.SoftDependencies)
	clone.Authors = cloneStrings(d.Authors)
	clone.Additional = d.Additional.Clone()
	return clone
}

// DependsOn reports whether name is a hard dependency of d.
func (d Descriptor) DependsOn(name string) bool {
	return containsString(d.Dependencies, name)
}

// SoftDependsOn reports whether name is a soft dependency of d.
func (d Descriptor) SoftDependsOn(name string) bool {
	return containsString(d.SoftDependencies, name)
}

// Document renders the descriptor back into manifest form.
func (d Descriptor) Document() Document {
	doc := Document{
		FieldName:             d.Name,
		FieldVersion:          d.Version,
		FieldLanguage:         d.Language,
		FieldDependencies:     toAnySlice(d.Dependencies),
		FieldSoftDependencies: toAnySlice(d.SoftDependencies),
		FieldAuthors:          toAnySlice(d.Authors),
		FieldAdditional:       d.Additional.Clone(),
	}
	if d.Description != "" {
		doc[FieldDescription] = d.Description
	}
	if doc[FieldAdditional] == nil {
		doc[FieldAdditional] = Document{}
	}
	return doc
}

// ParseDescriptor validates a manifest document and builds the descriptor.
// moduleDir only labels errors raised before the name is known.
func ParseDescriptor(moduleDir string, doc Document) (Descriptor, error) {
	label := filepath.Base(filepath.Clean(moduleDir))
	name, err := requiredString(label, doc, FieldName)
	if err != nil {
		return Descriptor{}, err
	}
	if !namePattern.MatchString(name) {
		return Descriptor{}, &DescriptionError{Module: label, Field: FieldName, Err: ErrWrongFieldContent, Detail: "alphanumeric (dashes and underscores allowed)"}
	}
	desc := Descriptor{Name: name}
	if desc.Version, err = requiredString(name, doc, FieldVersion); err != nil {
		return Descriptor{}, err
	}
	if desc.Language, err = requiredString(name, doc, FieldLanguage); err != nil {
		return Descriptor{}, err
	}
	if raw, ok := doc[FieldDescription]; ok && raw != nil {
		text, ok := raw.(string)
		if !ok {
			return Descriptor{}, &DescriptionError{Module: name, Field: FieldDescription, Err: ErrWrongFieldType, Detail: "string"}
		}
		desc.Description = strings.TrimSpace(text)
	}
	if desc.Dependencies, err = stringList(name, doc, FieldDependencies); err != nil {
		return Descriptor{}, err
	}
	if desc.SoftDependencies, err = stringList(name, doc, FieldSoftDependencies); err != nil {
		return Descriptor{}, err
	}
	if desc.Authors, err = stringList(name, doc, FieldAuthors); err != nil {
		return Descriptor{}, err
	}
	if desc.Dependencies, err = normalizeDependencies(name, FieldDependencies, desc.Dependencies, nil); err != nil {
		return Descriptor{}, err
	}
	// A name listed as both hard and soft is treated as hard.
	if desc.SoftDependencies, err = normalizeDependencies(name, FieldSoftDependencies, desc.SoftDependencies, desc.Dependencies); err != nil {
		return Descriptor{}, err
	}
	if raw, ok := doc[FieldAdditional]; ok && raw != nil {
		additional, ok := asDocument(raw)
		if !ok {
			return Descriptor{}, &DescriptionError{Module: name, Field: FieldAdditional, Err: ErrWrongFieldType, Detail: "object"}
		}
		desc.Additional = additional.Clone()
	}
	if desc.Additional == nil {
		desc.Additional = Document{}
	}
	return desc, nil
}

func requiredString(module string, doc Document, field string) (string, error) {
	raw, ok := doc[field]
	if !ok || raw == nil {
		return "", &DescriptionError{Module: module, Field: field, Err: ErrRequiredFieldMissing}
	}
	value, ok := raw.(string)
	if !ok {
		return "", &DescriptionError{Module: module, Field: field, Err: ErrWrongFieldType, Detail: "string"}
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", &DescriptionError{Module: module, Field: field, Err: ErrRequiredFieldMissing}
	}
	return trimmed, nil
}

func stringList(module string, doc Document, field string) ([]string, error) {
	raw, ok := doc[field]
	if !ok || raw == nil {
		return nil, nil
	}
	var items []any
	switch typed := raw.(type) {
	case []any:
		items = typed
	case []string:
		return normalizeList(module, field, toAnySlice(typed))
	default:
		return nil, &DescriptionError{Module: module, Field: field, Err: ErrWrongFieldType, Detail: "list of strings"}
	}
	return normalizeList(module, field, items)
}

func normalizeList(module, field string, items []any) ([]string, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(items))
	for idx, item := range items {
		value, ok := item.(string)
		if !ok {
			return nil, &DescriptionError{Module: module, Field: field, Err: ErrWrongFieldType, Detail: "list of strings"}
		}
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return nil, &DescriptionError{Module: module, Field: field, Err: ErrWrongFieldContent, Detail: fmt.Sprintf("free of blank entries (index %d)", idx)}
		}
		out = append(out, trimmed)
	}
	return out, nil
}

// normalizeDependencies rejects self-references and drops repeated entries
// and entries already listed in skip, keeping the first occurrence.
func normalizeDependencies(module, field string, deps, skip []string) ([]string, error) {
	if len(deps) == 0 {
		return deps, nil
	}
	seen := make(map[string]struct{}, len(deps))
	out := make([]string, 0, len(deps))
	for _, dep := range deps {
		if dep == module {
			return nil, &DescriptionError{Module: module, Field: field, Err: ErrWrongFieldContent, Detail: "free of self-references"}
		}
		if _, exists := seen[dep]; exists || containsString(skip, dep) {
			continue
		}
		seen[dep] = struct{}{}
		out = append(out, dep)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return append([]string(nil), values...)
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
