package llm

import "slices"

// StrictSchema rewrites a JSON schema into the subset accepted by OpenAI
// strict structured output: every object lists all of its properties as
// required, forbids additional properties, and optional properties become
// nullable instead. The input is not modified.
func StrictSchema(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}
	out, _ := strictValue(schema).(map[string]interface{})
	return out
}

func strictValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return strictObject(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = strictValue(item)
		}
		return out
	default:
		return v
	}
}

func strictObject(schema map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(schema)+2)
	for k, v := range schema {
		out[k] = v
	}

	if anyOf, ok := schema["anyOf"].([]interface{}); ok {
		out["anyOf"] = strictValue(anyOf)
	}
	if items, ok := schema["items"]; ok {
		out["items"] = strictValue(items)
	}
	for _, key := range []string{"$defs", "definitions"} {
		if defs, ok := schema[key].(map[string]interface{}); ok {
			normalized := make(map[string]interface{}, len(defs))
			for name, def := range defs {
				normalized[name] = strictValue(def)
			}
			out[key] = normalized
		}
	}

	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return out
	}

	required := make(map[string]bool)
	switch list := schema["required"].(type) {
	case []interface{}:
		for _, r := range list {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	case []string:
		for _, name := range list {
			required[name] = true
		}
	}

	newProps := make(map[string]interface{}, len(props))
	keys := make([]string, 0, len(props))
	for name, prop := range props {
		normalized := strictValue(prop)
		if !required[name] {
			normalized = nullable(normalized)
		}
		newProps[name] = normalized
		keys = append(keys, name)
	}
	slices.Sort(keys)
	names := make([]interface{}, len(keys))
	for i, k := range keys {
		names[i] = k
	}

	out["type"] = "object"
	out["properties"] = newProps
	out["required"] = names
	out["additionalProperties"] = false
	return out
}

func allowsNull(schema interface{}) bool {
	m, ok := schema.(map[string]interface{})
	if !ok {
		return false
	}
	switch t := m["type"].(type) {
	case string:
		return t == "null"
	case []interface{}:
		for _, v := range t {
			if v == "null" {
				return true
			}
		}
		return false
	}
	if anyOf, ok := m["anyOf"].([]interface{}); ok {
		for _, s := range anyOf {
			if allowsNull(s) {
				return true
			}
		}
	}
	return false
}

func nullable(schema interface{}) interface{} {
	if allowsNull(schema) {
		return schema
	}
	m, ok := schema.(map[string]interface{})
	if !ok {
		return map[string]interface{}{"anyOf": []interface{}{schema, map[string]interface{}{"type": "null"}}}
	}
	switch t := m["type"].(type) {
	case string:
		m["type"] = []interface{}{t, "null"}
	case []interface{}:
		m["type"] = append(append([]interface{}(nil), t...), "null")
	}
	return m
}
