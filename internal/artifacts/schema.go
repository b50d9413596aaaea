package artifacts

import (
	"bytes"
	"embed"
	"fmt"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const (
	schemaDiagnosis = "diagnosis"
	schemaDetection = "detection"
)

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

func schemaURL(name string) string {
	return fmt.Sprintf("mem://schemas/%s.schema.json", name)
}

// schemaFor returns the compiled schema for name. All schemas are compiled on
// first use.
func schemaFor(name string) (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		names := []string{schemaDiagnosis, schemaDetection}
		for _, n := range names {
			data, err := schemaFS.ReadFile("schemas/" + n + ".schema.json")
			if err != nil {
				compileErr = fmt.Errorf("read schema %s: %w", n, err)
				return
			}
			doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
			if err != nil {
				compileErr = fmt.Errorf("decode schema %s: %w", n, err)
				return
			}
			if err := c.AddResource(schemaURL(n), doc); err != nil {
				compileErr = fmt.Errorf("register schema %s: %w", n, err)
				return
			}
		}
		out := make(map[string]*jsonschema.Schema, len(names))
		for _, n := range names {
			s, err := c.Compile(schemaURL(n))
			if err != nil {
				compileErr = fmt.Errorf("compile schema %s: %w", n, err)
				return
			}
			out[n] = s
		}
		compiled = out
	})
	if compileErr != nil {
		return nil, compileErr
	}
	return compiled[name], nil
}
