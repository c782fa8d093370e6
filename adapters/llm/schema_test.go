package llm

import (
	"reflect"
	"testing"
)

func TestStrictSchema(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"title": map[string]interface{}{"type": "string"},
			"notes": map[string]interface{}{"type": "string"},
			"slides": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"heading": map[string]interface{}{"type": "string"},
					},
				},
			},
		},
		"required": []interface{}{"title", "slides"},
	}

	got := StrictSchema(schema)

	if got["additionalProperties"] != false {
		t.Errorf("Expected additionalProperties false, got %v", got["additionalProperties"])
	}
	if want := []interface{}{"notes", "slides", "title"}; !reflect.DeepEqual(got["required"], want) {
		t.Errorf("Expected every property required, got %v", got["required"])
	}

	props := got["properties"].(map[string]interface{})
	if typ := props["notes"].(map[string]interface{})["type"]; !reflect.DeepEqual(typ, []interface{}{"string", "null"}) {
		t.Errorf("Expected optional property to be nullable, got %v", typ)
	}
	if typ := props["title"].(map[string]interface{})["type"]; typ != "string" {
		t.Errorf("Required property should keep its type, got %v", typ)
	}

	// nested objects are rewritten too; the optional heading becomes nullable
	items := props["slides"].(map[string]interface{})["items"].(map[string]interface{})
	if items["additionalProperties"] != false {
		t.Errorf("Expected nested object to be strict, got %v", items)
	}
	heading := items["properties"].(map[string]interface{})["heading"].(map[string]interface{})
	if !reflect.DeepEqual(heading["type"], []interface{}{"string", "null"}) {
		t.Errorf("Unexpected nested property %v", heading)
	}

	// the input schema is left alone
	if _, ok := schema["additionalProperties"]; ok {
		t.Error("StrictSchema modified its input")
	}
	if typ := schema["properties"].(map[string]interface{})["notes"].(map[string]interface{})["type"]; typ != "string" {
		t.Errorf("StrictSchema modified a nested input, got %v", typ)
	}
}

func TestStrictSchemaNullableWithoutType(t *testing.T) {
	got := StrictSchema(map[string]interface{}{
		"properties": map[string]interface{}{
			"value": map[string]interface{}{"anyOf": []interface{}{map[string]interface{}{"type": "null"}}},
			"other": map[string]interface{}{"enum": []interface{}{"a", "b"}},
		},
	})

	props := got["properties"].(map[string]interface{})
	if _, ok := props["value"].(map[string]interface{})["type"]; ok {
		t.Errorf("A schema already allowing null should be kept, got %v", props["value"])
	}
	if got["type"] != "object" {
		t.Errorf("Expected object type, got %v", got["type"])
	}
}

func TestStrictSchemaNil(t *testing.T) {
	if StrictSchema(nil) != nil {
		t.Error("Expected nil for a nil schema")
	}
}
