package journey

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/autocrm/journey/pkg/models"
)

// Node config schemas enforced at save time, on top of the structural graph
// validation. The schemas guard the wire shape authored by the editor;
// models.Graph.Validate guards graph topology.
var nodeConfigSchemas = map[models.NodeType]map[string]any{
	models.NodeTypeTrigger: {
		"type":     "object",
		"required": []any{"event"},
		"properties": map[string]any{
			"event": map[string]any{"type": "string", "minLength": 1},
		},
	},
	models.NodeTypeAction: {
		"type":     "object",
		"required": []any{"kind"},
		"properties": map[string]any{
			"kind": map[string]any{
				"type": "string",
				"enum": []any{"send_message", "send_chat", "create_task"},
			},
			"message": map[string]any{
				"type":     "object",
				"required": []any{"text"},
				"properties": map[string]any{
					"text":       map[string]any{"type": "string", "minLength": 1},
					"channel":    map[string]any{"type": "string"},
					"sticker_id": map[string]any{"type": "string"},
				},
			},
			"task": map[string]any{
				"type":     "object",
				"required": []any{"title"},
				"properties": map[string]any{
					"title":           map[string]any{"type": "string", "minLength": 1},
					"due_in_days":     map[string]any{"type": "integer", "minimum": 0},
					"generate_script": map[string]any{"type": "boolean"},
				},
			},
		},
	},
	models.NodeTypeCondition: {
		"type":     "object",
		"required": []any{"field", "operator", "value"},
		"properties": map[string]any{
			"field": map[string]any{"type": "string", "minLength": 1},
			"operator": map[string]any{
				"type": "string",
				"enum": []any{">", "<", ">=", "<=", "="},
			},
		},
	},
	models.NodeTypeDelay: {
		"type": "object",
		"properties": map[string]any{
			"duration": map[string]any{"type": "string", "minLength": 1},
			"until":    map[string]any{"type": "string", "format": "date-time"},
		},
	},
}

// validateNodeConfigs checks every node's typed config against the JSON
// schema for its node type.
func validateNodeConfigs(graph *models.Graph) error {
	for _, node := range graph.Nodes {
		schema, ok := nodeConfigSchemas[node.Type]
		if !ok {
			return fmt.Errorf("node %s has unknown type %q", node.ID, node.Type)
		}

		config, err := nodeConfigDocument(node)
		if err != nil {
			return fmt.Errorf("node %s: %w", node.ID, err)
		}

		if err := validateJSONSchema(config, schema); err != nil {
			return fmt.Errorf("node %s: %w", node.ID, err)
		}
	}

	return nil
}

// nodeConfigDocument projects the node's tagged config variant back into a
// generic document for schema validation.
func nodeConfigDocument(node *models.Node) (any, error) {
	var variant any

	switch node.Type {
	case models.NodeTypeTrigger:
		variant = node.Data.Trigger
	case models.NodeTypeAction:
		variant = node.Data.Action
	case models.NodeTypeCondition:
		variant = node.Data.Condition
	case models.NodeTypeDelay:
		variant = node.Data.Delay
	}

	raw, err := json.Marshal(variant)
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	return doc, nil
}

// validateJSONSchema validates a config document against a JSON schema.
func validateJSONSchema(document any, schema map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(schema)
	documentLoader := gojsonschema.NewGoLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var errors []string
		for _, resultError := range result.Errors() {
			errors = append(errors, resultError.String())
		}

		return fmt.Errorf("config schema validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
