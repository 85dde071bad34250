package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Schema names.
const (
	SchemaCreateShop   = "create_shop.schema.json"
	SchemaSpeed        = "speed.schema.json"
	SchemaInitialState = "initial_state.schema.json"
	SchemaTick         = "tick.schema.json"
	SchemaShopAdded    = "shop_added.schema.json"
)

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func loadSchemas() {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		schemasErr = err
		return
	}

	c := jsonschema.NewCompiler()
	for _, e := range entries {
		raw, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			schemasErr = err
			return
		}
		if err := c.AddResource(e.Name(), bytes.NewReader(raw)); err != nil {
			schemasErr = fmt.Errorf("add schema %s: %w", e.Name(), err)
			return
		}
	}

	schemas = make(map[string]*jsonschema.Schema, len(entries))
	for _, e := range entries {
		s, err := c.Compile(e.Name())
		if err != nil {
			schemasErr = fmt.Errorf("compile schema %s: %w", e.Name(), err)
			return
		}
		schemas[e.Name()] = s
	}
}

// Validate checks raw JSON against the named embedded schema.
func Validate(name string, raw []byte) error {
	schemasOnce.Do(loadSchemas)
	if schemasErr != nil {
		return schemasErr
	}
	s, ok := schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return s.Validate(doc)
}

// DecodeCreateShop validates and decodes a POST /shops body.
func DecodeCreateShop(raw []byte) (CreateShopRequest, error) {
	var req CreateShopRequest
	if err := Validate(SchemaCreateShop, raw); err != nil {
		return req, err
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, err
	}
	if req.Type == "" {
		req.Type = "general"
	}
	return req, nil
}

// DecodeSpeed validates and decodes a POST /simulation/speed body.
func DecodeSpeed(raw []byte) (SpeedRequest, error) {
	var req SpeedRequest
	if err := Validate(SchemaSpeed, raw); err != nil {
		return req, err
	}
	err := json.Unmarshal(raw, &req)
	return req, err
}
