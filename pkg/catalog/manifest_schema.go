package catalog

// ManifestSchema is the JSON Schema every manifest entry must satisfy.
const ManifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "kind"],
  "properties": {
    "name": {
      "type": "string",
      "pattern": "^[a-zA-Z0-9_.-]+$",
      "description": "Unique tool name"
    },
    "description": {
      "type": "string"
    },
    "kind": {
      "type": "string",
      "minLength": 1,
      "description": "Registered tool kind that builds the tool"
    },
    "strict": {
      "type": "boolean",
      "description": "Validate arguments with the full schema validator"
    },
    "inputSchema": {
      "type": "object",
      "properties": {
        "type": { "const": "object" },
        "properties": { "type": "object" },
        "required": {
          "type": "array",
          "items": { "type": "string" },
          "uniqueItems": true
        }
      }
    },
    "config": {
      "type": "object",
      "description": "Kind specific settings"
    }
  }
}`
