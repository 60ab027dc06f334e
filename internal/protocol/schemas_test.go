package protocol_test

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"somnarium.ai/internal/concoction"
	"somnarium.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		var doc any
		_ = json.Unmarshal(b, &doc)
		if err := s.Validate(doc); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	validate(compile(protocol.SchemaHealth), protocol.HealthResponse{OK: true, Service: "somnarium"})
	validate(compile(protocol.SchemaCreateRequest), protocol.CreateConcoctionRequest{Items: []string{"gravity-anomaly"}})
	validate(compile(protocol.SchemaCreateResponse), protocol.CreateConcoctionResponse{Success: true, Code: "K3M9QZ"})
	validate(compile(protocol.SchemaErrorResponse), protocol.ErrorResponse{Error: "Code not found.", Code: protocol.ErrNotFound})

	dto := protocol.FromConcoction(concoction.Concoction{
		Code:      "K3M9QZ",
		Items:     []concoction.Item{{Slug: "gravity-anomaly", Seed: 0.5}},
		CreatedAt: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	validate(compile(protocol.SchemaConcoction), dto)
}

func TestValidateJSON_CreateRequest(t *testing.T) {
	ok := []string{
		`{"items":["a"]}`,
		`{"items":["a","b","c"],"seeds":[0,0.5,0.999]}`,
		`{"items":["a"," "],"extra":true}`,
	}
	for _, raw := range ok {
		if err := protocol.ValidateJSON(protocol.SchemaCreateRequest, []byte(raw)); err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
	}
	bad := map[string]string{
		`{}`:                            "items",
		`{"items":[]}`:                  "/items",
		`{"items":["a","b","c","d"]}`:   "/items",
		`{"items":[1]}`:                 "/items/0",
		`{"items":["a"],"seeds":[1.0]}`: "/seeds/0",
		`{"items":"a"}`:                 "/items",
	}
	for raw, want := range bad {
		err := protocol.ValidateJSON(protocol.SchemaCreateRequest, []byte(raw))
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("%s: err=%v want mention of %q", raw, err, want)
		}
	}
	if err := protocol.ValidateJSON(protocol.SchemaCreateRequest, []byte(`{`)); err == nil || !strings.HasPrefix(err.Error(), "malformed JSON") {
		t.Fatalf("malformed: %v", err)
	}
}

func TestValidateJSON_SchemaErrorField(t *testing.T) {
	err := protocol.ValidateJSON(protocol.SchemaCreateRequest, []byte(`{"items":["a"],"seeds":[2]}`))
	var se *protocol.SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("expected SchemaError, got %T %v", err, err)
	}
	if se.Field() != "seeds" {
		t.Fatalf("field: got %q want seeds", se.Field())
	}

	err = protocol.ValidateJSON(protocol.SchemaCreateRequest, []byte(`{}`))
	if !errors.As(err, &se) || se.Field() != "" {
		t.Fatalf("root failure: %v", err)
	}
}

func TestValidateJSON_DecodesNumbersAndRejectsTrailingData(t *testing.T) {
	if err := protocol.ValidateJSON(protocol.SchemaCreateRequest, []byte(`{"items":["a","b"],"seeds":[0.25,1e-1]}`)); err != nil {
		t.Fatalf("valid request: %v", err)
	}
	err := protocol.ValidateJSON(protocol.SchemaCreateRequest, []byte(`{"items":["a"],"seeds":[0.1,0.2,0.3,0.4]}`))
	var se *protocol.SchemaError
	if !errors.As(err, &se) || se.Field() != "seeds" {
		t.Fatalf("too many seeds: %v", err)
	}
	err = protocol.ValidateJSON(protocol.SchemaCreateRequest, []byte(`{"items":["a"]} {"items":["b"]}`))
	if err == nil || !strings.HasPrefix(err.Error(), "malformed JSON") {
		t.Fatalf("trailing document: %v", err)
	}
}
