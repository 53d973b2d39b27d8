// Package testcase decodes and validates declarative test-case documents.
//
// A document is YAML or JSON holding one test case, a list of test cases, or
// a suite object with a "tests" list. Every test case is checked against the
// embedded JSON Schema before it is decoded.
package testcase

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/segmentio/encoding/json"
	"gopkg.in/yaml.v3"

	"github.com/skilleval/engine/pkg/types"
)

//go:embed testcase.schema.json
var schemaJSON []byte

const schemaURL = "testcase.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error

	validate = validator.New()
)

// Schema returns the compiled test-case schema.
func Schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("decode test case schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("add test case schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Suite is a named collection of test cases for one skill.
type Suite struct {
	Skill string           `json:"skill,omitempty"`
	Tests []types.TestCase `json:"tests"`
}

// Format is a document encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFor picks the format from a file extension; anything that is not
// .yaml or .yml is JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// LoadFile reads and decodes the test cases in path.
func LoadFile(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read test cases: %w", err)
	}
	s, err := Decode(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Decode parses a test-case document, validates every test case and
// rejects duplicate names.
func Decode(data []byte, format Format) (*Suite, error) {
	doc, err := toJSONValue(data, format)
	if err != nil {
		return nil, err
	}

	suite := &Suite{}
	var items []any
	switch v := doc.(type) {
	case []any:
		items = v
	case map[string]any:
		if tests, ok := v["tests"]; ok {
			list, ok := tests.([]any)
			if !ok {
				return nil, errors.New(`"tests" must be a list`)
			}
			items = list
			if skill, ok := v["skill"].(string); ok {
				suite.Skill = skill
			}
		} else {
			items = []any{v}
		}
	default:
		return nil, fmt.Errorf("test case document must be an object or a list, got %T", doc)
	}

	seen := make(map[string]bool, len(items))
	for i, item := range items {
		tc, err := decodeOne(item)
		if err != nil {
			return nil, fmt.Errorf("test %d: %w", i, err)
		}
		if seen[tc.Name] {
			return nil, fmt.Errorf("test %d: duplicate test name %q", i, tc.Name)
		}
		seen[tc.Name] = true
		suite.Tests = append(suite.Tests, *tc)
	}
	return suite, nil
}

// ParseJSON decodes and validates a single JSON test case. Failures are
// reported as INVALID_TEST_CASE.
func ParseJSON(raw []byte) (*types.TestCase, *types.RPCError) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, invalid("malformed test case", err)
	}
	tc, err := decodeOne(doc)
	if err != nil {
		return nil, invalid("invalid test case", err)
	}
	return tc, nil
}

// Validate applies the struct constraints to an already decoded test case.
func Validate(tc *types.TestCase) error {
	if tc == nil {
		return errors.New("test case is nil")
	}
	if err := validate.Struct(tc); err != nil {
		return err
	}
	if tc.Expected != nil {
		for i := range tc.Expected.SmokeTests {
			if err := validate.Struct(&tc.Expected.SmokeTests[i]); err != nil {
				return fmt.Errorf("smoke_tests[%d]: %w", i, err)
			}
		}
	}
	return nil
}

func decodeOne(item any) (*types.TestCase, error) {
	sch, err := Schema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(item); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("re-encode test case: %w", err)
	}
	var tc types.TestCase
	if err := json.Unmarshal(raw, &tc); err != nil {
		return nil, fmt.Errorf("decode test case: %w", err)
	}
	if err := Validate(&tc); err != nil {
		return nil, err
	}
	return &tc, nil
}

// toJSONValue decodes data into the generic JSON value model the schema
// validator expects. YAML is round-tripped through JSON to normalise scalars.
func toJSONValue(data []byte, format Format) (any, error) {
	if format == FormatYAML {
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		converted, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("convert yaml: %w", err)
		}
		data = converted
	}
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return v, nil
}

func invalid(msg string, err error) *types.RPCError {
	return types.NewRPCError(types.ErrInvalidTestCase, msg, types.ErrTypeInvalidTestCase, false, err.Error())
}
