package document

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Shape names an accepted input layout.
type Shape string

const (
	// ShapeStructured is {"pages": [{number, title, text, tables, images}]}.
	ShapeStructured Shape = "structured"
	// ShapeExtraction is the raw extraction output: {"arquivo", "paginas": [{numero, texto, imagens}]}.
	ShapeExtraction Shape = "extraction"
	// ShapeLegacy is {"sections": [{title, content, images}]} or a bare section array.
	ShapeLegacy Shape = "legacy"
)

// detectionOrder is the order shapes are tried in.
var detectionOrder = []Shape{ShapeStructured, ShapeExtraction, ShapeLegacy}

// Schemas only pin down structure. Image coordinates are left untyped and
// parsed leniently during conversion.
var schemaSources = map[Shape]string{
	ShapeStructured: `{
		"type": "object",
		"required": ["pages"],
		"properties": {
			"source": {"type": "string"},
			"processed_at": {"type": "string"},
			"pages": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"number": {"type": "integer", "minimum": 0},
						"title": {"type": "string"},
						"text": {"type": "string"},
						"tables": {"type": "array"},
						"images": {"type": "array", "items": {"type": "object"}}
					}
				}
			}
		}
	}`,
	ShapeExtraction: `{
		"type": "object",
		"required": ["paginas"],
		"properties": {
			"arquivo": {"type": "string"},
			"data_processamento": {"type": "string"},
			"paginas": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"numero": {"type": "integer", "minimum": 0},
						"texto": {"type": "string"},
						"imagens": {"type": "array", "items": {"type": "object"}}
					}
				}
			}
		}
	}`,
	ShapeLegacy: `{
		"$defs": {
			"section": {
				"type": "object",
				"anyOf": [{"required": ["title"]}, {"required": ["content"]}],
				"properties": {
					"title": {"type": "string"},
					"content": {"type": "string"},
					"images": {"type": "array", "items": {"type": "object"}}
				}
			}
		},
		"oneOf": [
			{
				"type": "object",
				"required": ["sections"],
				"properties": {"sections": {"type": "array", "items": {"$ref": "#/$defs/section"}}}
			},
			{"type": "array", "items": {"$ref": "#/$defs/section"}}
		]
	}`,
}

func compileSchemas() (map[Shape]*jsonschema.Schema, error) {
	out := make(map[Shape]*jsonschema.Schema, len(schemaSources))
	for shape, src := range schemaSources {
		url := string(shape) + ".json"
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(url, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", shape, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", shape, err)
		}
		out[shape] = schema
	}
	return out, nil
}
