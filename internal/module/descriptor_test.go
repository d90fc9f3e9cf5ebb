package module

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDescriptor_Valid(t *testing.T) {
	doc := Document{
		"name":             "network",
		"version":          " 2.1.0 ",
		"language":         "go",
		"description":      "wires interfaces",
		"dependencies":     []any{"core"},
		"softDependencies": []any{"metrics", "ui"},
		"authors":          []any{"ana"},
		"additional":       map[string]any{"main": "net.go", "nested": map[string]any{"k": []any{"v"}}},
	}

	desc, err := ParseDescriptor("/mods/network", doc)

	require.NoError(t, err)
	require.Equal(t, "network", desc.Name)
	require.Equal(t, "2.1.0", desc.Version)
	require.Equal(t, []string{"core"}, desc.Dependencies)
	require.Equal(t, []string{"metrics", "ui"}, desc.SoftDependencies)
	require.True(t, desc.DependsOn("core"))
	require.False(t, desc.DependsOn("ui"))
	require.True(t, desc.SoftDependsOn("ui"))
	require.Equal(t, "net.go", desc.Additional.StringOr("main", "main.go"))

	// The descriptor must not alias the input document.
	nested := doc["additional"].(map[string]any)["nested"].(map[string]any)
	nested["k"].([]any)[0] = "changed"
	inner, ok := desc.Additional.Object("nested")
	require.True(t, ok)
	require.Equal(t, []any{"v"}, inner["k"])
}

func TestParseDescriptor_Defaults(t *testing.T) {
	desc, err := ParseDescriptor("/mods/core", Document{"name": "core", "version": "1", "language": "java"})

	require.NoError(t, err)
	require.Empty(t, desc.Dependencies)
	require.Empty(t, desc.SoftDependencies)
	require.NotNil(t, desc.Additional)
	require.Equal(t, "main.go", desc.Additional.StringOr("main", "main.go"))
}

func TestParseDescriptor_Errors(t *testing.T) {
	base := func(overrides Document) Document {
		doc := Document{"name": "mod", "version": "1.0", "language": "java"}
		for k, v := range overrides {
			if v == nil {
				delete(doc, k)
				continue
			}
			doc[k] = v
		}
		return doc
	}
	tests := []struct {
		name  string
		doc   Document
		want  error
		field string
	}{
		{name: "missing name", doc: base(Document{"name": nil}), want: ErrRequiredFieldMissing, field: FieldName},
		{name: "blank version", doc: base(Document{"version": "  "}), want: ErrRequiredFieldMissing, field: FieldVersion},
		{name: "missing language", doc: base(Document{"language": nil}), want: ErrRequiredFieldMissing, field: FieldLanguage},
		{name: "numeric name", doc: base(Document{"name": 12}), want: ErrWrongFieldType, field: FieldName},
		{name: "invalid name", doc: base(Document{"name": "has space"}), want: ErrWrongFieldContent, field: FieldName},
		{name: "dependencies not a list", doc: base(Document{"dependencies": "core"}), want: ErrWrongFieldType, field: FieldDependencies},
		{name: "dependency not a string", doc: base(Document{"dependencies": []any{1}}), want: ErrWrongFieldType, field: FieldDependencies},
		{name: "blank dependency", doc: base(Document{"dependencies": []any{" "}}), want: ErrWrongFieldContent, field: FieldDependencies},
		{name: "self dependency", doc: base(Document{"dependencies": []any{"mod"}}), want: ErrWrongFieldContent, field: FieldDependencies},
		{name: "additional not an object", doc: base(Document{"additional": []any{"x"}}), want: ErrWrongFieldType, field: FieldAdditional},
		{name: "description not a string", doc: base(Document{"description": true}), want: ErrWrongFieldType, field: FieldDescription},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDescriptor("/mods/mod", tc.doc)
			require.ErrorIs(t, err, tc.want)
			var descErr *DescriptionError
			require.True(t, errors.As(err, &descErr))
			require.Equal(t, tc.field, descErr.Field)
		})
	}
}

func TestDescriptionError_Messages(t *testing.T) {
	require.EqualError(t,
		&DescriptionError{Module: "m", Field: "name", Err: ErrRequiredFieldMissing},
		"module: description of m is invalid: name is required")
	require.EqualError(t,
		&DescriptionError{Module: "m", Field: "authors", Err: ErrWrongFieldType, Detail: "list of strings"},
		"module: description of m is invalid: authors needs to be of type list of strings")
}

func TestDescriptor_DocumentRoundTrip(t *testing.T) {
	desc, err := ParseDescriptor("/mods/core", Document{
		"name": "core", "version": "1", "language": "lua",
		"dependencies": []any{"base"}, "additional": map[string]any{"main": "init.lua"},
	})
	require.NoError(t, err)

	again, err := ParseDescriptor("/mods/core", desc.Document())

	require.NoError(t, err)
	require.Equal(t, desc, again)
}

func TestDescriptor_CloneIsIndependent(t *testing.T) {
	desc := Descriptor{Name: "a", Dependencies: []string{"b"}, Additional: Document{"k": "v"}}
	clone := desc.Clone()
	clone.Dependencies[0] = "c"
	clone.Additional["k"] = "w"

	require.Equal(t, "b", desc.Dependencies[0])
	require.Equal(t, "v", desc.Additional["k"])
}

func TestParseDescriptor_NormalizesDependencyLists(t *testing.T) {
	desc, err := ParseDescriptor("/mods/mod", Document{
		"name":             "mod",
		"version":          "1.0.0",
		"language":         "java",
		"dependencies":     []any{"a", "b", "a"},
		"softDependencies": []any{"c", "a", "c", "d"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, desc.Dependencies)
	require.Equal(t, []string{"c", "d"}, desc.SoftDependencies)

	desc, err = ParseDescriptor("/mods/mod", Document{
		"name":             "mod",
		"version":          "1.0.0",
		"language":         "java",
		"dependencies":     []any{"a"},
		"softDependencies": []any{"a"},
	})
	require.NoError(t, err)
	require.True(t, desc.DependsOn("a"))
	require.False(t, desc.SoftDependsOn("a"))
	require.Empty(t, desc.SoftDependencies)
}
