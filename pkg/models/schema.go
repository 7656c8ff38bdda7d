package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var ErrUnknownStepType = errors.New("unknown step type")

// stepSchemas maps each step type to the JSON Schema its payload must
// satisfy. Payloads arrive as free-form maps from the store or the API, so
// schema validation happens before the interpreter decodes them.
var stepSchemas = map[StepType]map[string]any{
	StepAction: {
		"type": "object",
		"properties": map[string]any{
			"action_type": map[string]any{
				"type": "string",
				"enum": []string{"post", "like", "repost", "follow", "unfollow", "check_status", "send_notification"},
			},
			"account_ids":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"account_group_id": map[string]any{"type": "string"},
			"target_type": map[string]any{
				"type": "string",
				"enum": []string{"keyword", "hashtag", "timeline", "user_list"},
			},
			"target_value": map[string]any{"type": "string"},
			"content":      map[string]any{"type": "string"},
			"media_ids":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"action_type"},
	},
	StepCondition: {
		"type": "object",
		"properties": map[string]any{
			"kind": map[string]any{
				"type": "string",
				"enum": []string{"account_status", "time_window", "action_count", "random", "has_proxy"},
			},
			"account_id":     map[string]any{"type": "string"},
			"account_status": map[string]any{"type": "string"},
			"from_hour":      map[string]any{"type": "integer", "minimum": 0, "maximum": 23},
			"to_hour":        map[string]any{"type": "integer", "minimum": 0, "maximum": 23},
			"weekdays":       map[string]any{"type": "array", "items": map[string]any{"type": "integer", "minimum": 0, "maximum": 6}},
			"min_actions":    map[string]any{"type": "integer", "minimum": 0},
			"max_actions":    map[string]any{"type": "integer", "minimum": 0},
			"chance":         map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		},
		"required": []string{"kind"},
	},
	StepLoop: {
		"type": "object",
		"properties": map[string]any{
			"body_step_id":     map[string]any{"type": "string"},
			"loop_count":       map[string]any{"type": "integer", "minimum": 1},
			"loop_account_ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"body_step_id"},
	},
	StepDelay: {
		"type": "object",
		"properties": map[string]any{
			"delay_minutes": map[string]any{"type": "integer", "minimum": 0},
			"delay_seconds": map[string]any{"type": "integer", "minimum": 0},
		},
	},
	StepParallel: {
		"type": "object",
		"properties": map[string]any{
			"branch_step_ids":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "minItems": 1},
			"tolerate_partial": map[string]any{"type": "boolean"},
		},
		"required": []string{"branch_step_ids"},
	},
}

// ValidateStepConfig validates a step's payload against the schema for its
// step type. Action steps validate ActionConfig; all other types validate
// ConditionConfig for condition nodes and ActionConfig otherwise.
func ValidateStepConfig(step *WorkflowStep) error {
	schema, ok := stepSchemas[step.StepType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStepType, step.StepType)
	}

	payload := step.ActionConfig
	if step.StepType == StepCondition {
		payload = step.ConditionConfig
	}

	if payload == nil {
		payload = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate step %s config: %w", step.ID, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}

		return fmt.Errorf("step %s config invalid: %s", step.ID, strings.Join(details, "; "))
	}

	return nil
}
