package config

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// The set of task kinds is closed: every configurable task has a schema
// checked in next to this file, and a PUT for any other name is a 404.
var taskSchemas = mustCompileSchemas()

func mustCompileSchemas() map[string]*jsonschema.Schema {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		panic(fmt.Sprintf("read embedded schemas: %v", err))
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	out := make(map[string]*jsonschema.Schema, len(entries))
	for _, e := range entries {
		name := "schemas/" + e.Name()
		data, err := schemaFS.ReadFile(name)
		if err != nil {
			panic(fmt.Sprintf("read %s: %v", name, err))
		}
		if err := c.AddResource(name, bytes.NewReader(data)); err != nil {
			panic(fmt.Sprintf("add %s: %v", name, err))
		}
		sch, err := c.Compile(name)
		if err != nil {
			panic(fmt.Sprintf("compile %s: %v", name, err))
		}
		out[strings.TrimSuffix(e.Name(), ".json")] = sch
	}
	return out
}

// KnownTasks returns the closed set of configurable task names.
func KnownTasks() []string {
	names := make([]string, 0, len(taskSchemas))
	for name := range taskSchemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDocument checks a config document against the task's schema.
// Unknown task names map to ErrNotFound; schema violations come back as a
// *ValidationError listing every failing location.
func ValidateDocument(taskName string, doc json.RawMessage) error {
	sch, ok := taskSchemas[taskName]
	if !ok {
		return ErrNotFound
	}
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return &ValidationError{TaskName: taskName, Issues: []string{"document is not valid JSON"}}
	}
	if err := sch.Validate(v); err != nil {
		ve, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return &ValidationError{TaskName: taskName, Issues: []string{err.Error()}}
		}
		return &ValidationError{TaskName: taskName, Issues: flattenIssues(ve)}
	}
	return nil
}

// EnabledFromDoc reads the optional top-level "enabled" key; a document
// that omits it means the task stays enabled.
func EnabledFromDoc(doc json.RawMessage) bool {
	var probe struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.Unmarshal(doc, &probe); err != nil || probe.Enabled == nil {
		return true
	}
	return *probe.Enabled
}

func flattenIssues(ve *jsonschema.ValidationError) []string {
	var out []string
	for _, be := range ve.BasicOutput().Errors {
		if be.Error == "" || strings.HasPrefix(be.Error, "doesn't validate with") {
			continue
		}
		loc := be.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		out = append(out, loc+": "+be.Error)
	}
	if len(out) == 0 {
		out = append(out, ve.Message)
	}
	return out
}
