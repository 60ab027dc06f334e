package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const (
	SchemaCreateRequest  = "create_concoction_request.schema.json"
	SchemaCreateResponse = "create_concoction_response.schema.json"
	SchemaConcoction     = "concoction.schema.json"
	SchemaHealth         = "health.schema.json"
	SchemaErrorResponse  = "error.schema.json"
	SchemaFeedEvent      = "feed_event.schema.json"
)

const schemaBaseURL = "https://somnarium.ai/schemas/"

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func loadSchemas() {
	c := jsonschema.NewCompiler()
	c.AssertFormat = true
	entries, err := fs.ReadDir(schemaFS, "schemas")
	if err != nil {
		schemasErr = err
		return
	}
	for _, e := range entries {
		b, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			schemasErr = err
			return
		}
		if err := c.AddResource(schemaBaseURL+e.Name(), bytes.NewReader(b)); err != nil {
			schemasErr = fmt.Errorf("%s: %w", e.Name(), err)
			return
		}
	}
	schemas = map[string]*jsonschema.Schema{}
	for _, e := range entries {
		s, err := c.Compile(schemaBaseURL + e.Name())
		if err != nil {
			schemasErr = fmt.Errorf("%s: %w", e.Name(), err)
			return
		}
		schemas[e.Name()] = s
	}
}

// Schema returns the compiled embedded schema with the given file name.
func Schema(name string) (*jsonschema.Schema, error) {
	schemasOnce.Do(loadSchemas)
	if schemasErr != nil {
		return nil, schemasErr
	}
	s, ok := schemas[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", name)
	}
	return s, nil
}

// ValidateJSON checks raw against the named schema and returns a short,
// human-readable reason on failure.
func ValidateJSON(name string, raw []byte) error {
	s, err := Schema(name)
	if err != nil {
		return err
	}
	// Numbers stay json.Number so integer checks see the literal.
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("malformed JSON: trailing data")
	}
	if err := s.Validate(v); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return leafError(ve)
		}
		return err
	}
	return nil
}

// SchemaError is the innermost cause of a schema validation failure.
type SchemaError struct {
	Location string
	Message  string
}

func (e *SchemaError) Error() string { return fmt.Sprintf("%s: %s", e.Location, e.Message) }

// Field reports the top-level property the failure sits under, or "" for
// failures on the document root.
func (e *SchemaError) Field() string {
	f := strings.TrimPrefix(e.Location, "/")
	if i := strings.IndexByte(f, '/'); i >= 0 {
		f = f[:i]
	}
	return f
}

func leafError(ve *jsonschema.ValidationError) *SchemaError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := ve.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return &SchemaError{Location: loc, Message: ve.Message}
}
