package mcpclient

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// normalizeArrayParameters makes sure every array property has an items
// schema, which several providers require.
func normalizeArrayParameters(schema map[string]interface{}) {
	if schema == nil {
		return
	}
	properties, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return
	}
	for _, propValue := range properties {
		propMap, ok := propValue.(map[string]interface{})
		if !ok {
			continue
		}
		switch propMap["type"] {
		case "array":
			if items, ok := propMap["items"].(map[string]interface{}); ok {
				normalizeArrayParameters(items)
			} else if _, exists := propMap["items"]; !exists {
				propMap["items"] = map[string]interface{}{"type": "string"}
			}
		case "object":
			normalizeArrayParameters(propMap)
		}
	}
}

// ToolParameters converts an MCP input schema into a JSON Schema map.
func ToolParameters(tool mcp.Tool) map[string]interface{} {
	schemaType := tool.InputSchema.Type
	if schemaType == "" {
		schemaType = "object"
	}
	schema := map[string]interface{}{"type": schemaType}

	// round-trip so nested maps are plain map[string]interface{}
	props := map[string]interface{}{}
	if len(tool.InputSchema.Properties) > 0 {
		if data, err := json.Marshal(tool.InputSchema.Properties); err == nil {
			_ = json.Unmarshal(data, &props)
		}
	}
	schema["properties"] = props

	if len(tool.InputSchema.Required) > 0 {
		schema["required"] = tool.InputSchema.Required
	} else {
		schema["required"] = []string{}
	}
	normalizeArrayParameters(schema)
	return schema
}

// ToolResultAsString flattens a tool result into text. Results flagged as
// errors are returned as an error carrying their text.
func ToolResultAsString(result *mcp.CallToolResult) (string, error) {
	if result == nil {
		return "Tool execution completed but no result returned", nil
	}

	var parts []string
	for _, content := range result.Content {
		switch c := content.(type) {
		case mcp.TextContent:
			parts = append(parts, unwrapTextEnvelope(c.Text))
		case *mcp.TextContent:
			parts = append(parts, unwrapTextEnvelope(c.Text))
		case mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[Image: %s]", c.MIMEType))
		case *mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[Image: %s]", c.MIMEType))
		case mcp.EmbeddedResource:
			parts = append(parts, fmt.Sprintf("[Resource: %s]", formatResourceContents(c.Resource)))
		case *mcp.EmbeddedResource:
			parts = append(parts, fmt.Sprintf("[Resource: %s]", formatResourceContents(c.Resource)))
		default:
			if data, err := json.Marshal(content); err == nil {
				parts = append(parts, string(data))
			} else {
				parts = append(parts, fmt.Sprintf("[Unknown content type: %T]", content))
			}
		}
	}

	joined := strings.Join(parts, "\n")
	if result.IsError {
		return "", fmt.Errorf("%s", joined)
	}
	return joined, nil
}

// unwrapTextEnvelope unwraps servers that double-encode text as
// {"type":"text","text":"..."}.
func unwrapTextEnvelope(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return text
	}
	var envelope struct {
		Type string  `json:"type"`
		Text *string `json:"text"`
	}
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil || envelope.Type != "text" || envelope.Text == nil {
		return text
	}
	return *envelope.Text
}

func formatResourceContents(resource mcp.ResourceContents) string {
	switch r := resource.(type) {
	case mcp.TextResourceContents:
		return r.Text
	case *mcp.TextResourceContents:
		return r.Text
	case mcp.BlobResourceContents:
		return fmt.Sprintf("[Binary data: %s]", r.MIMEType)
	case *mcp.BlobResourceContents:
		return fmt.Sprintf("[Binary data: %s]", r.MIMEType)
	default:
		if data, err := json.Marshal(resource); err == nil {
			return string(data)
		}
		return fmt.Sprintf("[Unknown resource type: %T]", resource)
	}
}
