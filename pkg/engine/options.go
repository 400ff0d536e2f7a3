package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Options configures a loaded graph. The JSON field names are the wire
// names every adapter sends to its backend and the document accepted on the
// metadata input channel.
type Options struct {
	EnableLog   bool `json:"enable-log"`
	GPULayers   int  `json:"n-gpu-layers"`
	ContextSize int  `json:"ctx-size"`
}

// DefaultOptions returns the stock options: quiet backend, no GPU offload,
// a 512-token window.
func DefaultOptions() Options {
	return Options{
		EnableLog:   false,
		GPULayers:   0,
		ContextSize: 512,
	}
}

// optionsSchema constrains the options document: typed fields, no unknown
// keys, non-negative layer count, positive context size.
const optionsSchema = `{
	"type": "object",
	"properties": {
		"enable-log":   {"type": "boolean"},
		"n-gpu-layers": {"type": "integer", "minimum": 0},
		"ctx-size":     {"type": "integer", "minimum": 1}
	},
	"additionalProperties": false
}`

// Validate checks the options against the schema.
func (o Options) Validate() error {
	doc, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}
	return validateOptionsJSON(doc)
}

// Marshal serializes the options for a backend config string or the
// metadata input channel.
func (o Options) Marshal() ([]byte, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(o)
}

// ParseOptions validates and decodes an options document, as received on
// the metadata input channel.
func ParseOptions(data []byte) (Options, error) {
	if err := validateOptionsJSON(data); err != nil {
		return Options{}, err
	}

	var opts Options
	if err := json.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("failed to parse options: %w", err)
	}
	return opts, nil
}

func validateOptionsJSON(doc []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(optionsSchema)
	documentLoader := gojsonschema.NewBytesLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("options validation error: %w", err)
	}

	if !result.Valid() {
		errors := make([]string, len(result.Errors()))
		for i, err := range result.Errors() {
			errors[i] = err.String()
		}
		return fmt.Errorf("invalid options: %s", strings.Join(errors, "; "))
	}

	return nil
}
