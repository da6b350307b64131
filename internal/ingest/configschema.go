package ingest

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed jobconfig.schema.json
var jobConfigSchema string

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("jobconfig.schema.json", strings.NewReader(jobConfigSchema)); err != nil {
		return nil, err
	}
	return compiler.Compile("jobconfig.schema.json")
})

// ValidateJobConfig checks a config blob against the embedded schema before
// it is stamped onto jobs. Everything downstream trusts the blob, so a bad
// one has to be stopped here.
func ValidateJobConfig(raw string) error {
	schema, err := compileSchema()
	if err != nil {
		return fmt.Errorf("compile job config schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fmt.Errorf("job config is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("job config rejected: %w", err)
	}
	return nil
}
