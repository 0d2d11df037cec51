package service

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/noah-isme/gema-grading-api/pkg/ai"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBaseURL = "https://schemas.gema.local/grading/"

// Schema file names under schemas/.
const (
	AnalysisResultSchema   = "analysis_result.schema.json"
	PlagiarismGroupsSchema = "plagiarism_groups.schema.json"
	LearningOutcomesSchema = "learning_outcomes.schema.json"
)

var (
	schemaOnce     sync.Once
	compiledSchema map[string]*jsonschema.Schema
	schemaErr      error
)

// SchemaDocument returns the raw JSON schema bytes for name.
func SchemaDocument(name string) ([]byte, error) {
	return schemaFS.ReadFile("schemas/" + name)
}

// CompiledSchema returns the compiled validator for name.
func CompiledSchema(name string) (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = compileSchemas()
	})
	if schemaErr != nil {
		return nil, schemaErr
	}

	schema, ok := compiledSchema[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", name)
	}
	return schema, nil
}

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	names := []string{AnalysisResultSchema, PlagiarismGroupsSchema, LearningOutcomesSchema}

	compiler := jsonschema.NewCompiler()
	for _, name := range names {
		doc, err := SchemaDocument(name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		if err := compiler.AddResource(schemaBaseURL+name, bytes.NewReader(doc)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}

	compiled := make(map[string]*jsonschema.Schema, len(names))
	for _, name := range names {
		schema, err := compiler.Compile(schemaBaseURL + name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		compiled[name] = schema
	}

	return compiled, nil
}

func responseSchema(name, label string) *ai.ResponseSchema {
	doc, err := SchemaDocument(name)
	if err != nil {
		return nil
	}
	return &ai.ResponseSchema{Name: label, Schema: json.RawMessage(doc)}
}
