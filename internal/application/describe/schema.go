package describe

// SchemaName response_format 中声明的 Schema 名称
const SchemaName = "product_descriptions"

// DescriptionsJSONSchema 生成结果的 JSON Schema
func DescriptionsJSONSchema(targetCount, maxNameLength int) map[string]any {
	name := map[string]any{
		"type":        "string",
		"description": "Attention-grabbing product title",
	}
	if maxNameLength > 0 {
		name["maxLength"] = maxNameLength
	}

	list := map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []any{"name", "description"},
			"properties": map[string]any{
				"name": name,
				"description": map[string]any{
					"type":        "string",
					"description": "Full listing copy: hook, emoji feature bullets, benefits, USP and call-to-action",
				},
			},
		},
	}
	if targetCount > 0 {
		list["minItems"] = targetCount
		list["maxItems"] = targetCount
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"descriptions"},
		"properties": map[string]any{
			"descriptions": list,
		},
	}
}
