package gateway

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBaseURL = "https://careai.local/schemas/"

// Payload schemas.
const (
	schemaInteraction = "interaction.json"
	schemaFeedback    = "feedback.json"
)

// schemaSet holds the compiled payload schemas.
type schemaSet map[string]*jsonschema.Schema

func compileSchemas() (schemaSet, error) {
	compiler := jsonschema.NewCompiler()
	names := []string{schemaInteraction, schemaFeedback}
	for _, name := range names {
		data, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		if err := compiler.AddResource(schemaBaseURL+name, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", name, err)
		}
	}

	set := make(schemaSet, len(names))
	for _, name := range names {
		s, err := compiler.Compile(schemaBaseURL + name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		set[name] = s
	}
	return set, nil
}

// SchemaViolation is a payload that failed validation.
type SchemaViolation struct {
	Schema string
	Issues []SchemaIssue
}

// SchemaIssue locates one failing keyword in the payload.
type SchemaIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (v *SchemaViolation) Error() string {
	if len(v.Issues) == 0 {
		return "payload does not match " + v.Schema
	}
	first := v.Issues[0]
	return fmt.Sprintf("payload does not match %s: %s %s", v.Schema, first.Path, first.Message)
}

// decode validates raw against the named schema and unmarshals it into dst.
func (s schemaSet) decode(name string, raw []byte, dst any) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &SchemaViolation{Schema: name, Issues: []SchemaIssue{{Path: "/", Message: "invalid JSON: " + err.Error()}}}
	}

	if err := s[name].Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		v := &SchemaViolation{Schema: name}
		for _, e := range ve.BasicOutput().Errors {
			// The root entry only says that a descendant failed.
			if e.KeywordLocation == "" {
				continue
			}
			path := e.InstanceLocation
			if path == "" {
				path = "/"
			}
			v.Issues = append(v.Issues, SchemaIssue{Path: path, Message: e.Error})
		}
		return v
	}
	return json.Unmarshal(raw, dst)
}
