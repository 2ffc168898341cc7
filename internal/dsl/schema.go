package dsl

// documentSchema is the structural JSON Schema for mapping documents
// (draft-07). Structural failures short-circuit validation with the
// offending keyword, upper-cased, as the issue code. Semantic rules in
// validate.go run only on structurally sound documents.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["dsl_version", "fields"],
  "properties": {
    "dsl_version": {"type": "string", "minLength": 1},
    "index": {"type": "string"},
    "globals": {
      "type": "object",
      "properties": {
        "nulls": {"type": "array", "items": {"type": "string"}},
        "bool_true": {"type": "array", "items": {"type": "string"}},
        "bool_false": {"type": "array", "items": {"type": "string"}},
        "decimal_sep": {"type": "string", "maxLength": 1},
        "thousands_sep": {"type": "string", "maxLength": 1},
        "date_formats": {"type": "array", "items": {"type": "string"}},
        "default_tz": {"type": "string"},
        "empty_as_null": {"type": "boolean"},
        "preview": {
          "type": "object",
          "properties": {
            "sample_size": {"type": "integer", "minimum": 1},
            "seed": {"type": "integer"}
          }
        }
      }
    },
    "id_policy": {
      "type": "object",
      "required": ["from"],
      "properties": {
        "from": {"type": "array", "items": {"type": "string"}, "minItems": 1},
        "op": {"type": "string", "enum": ["concat"]},
        "sep": {"type": "string"},
        "on_conflict": {"type": "string", "enum": ["error", "skip", "overwrite"]},
        "hash": {"type": "string", "enum": ["sha1", "sha256", "sha512", "md5"]},
        "salt": {"type": "string"}
      }
    },
    "containers": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["path", "type"],
        "properties": {
          "path": {"type": "string", "minLength": 1},
          "type": {"type": "string", "enum": ["nested", "object"]}
        }
      }
    },
    "fields": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["target", "type"],
        "properties": {
          "target": {"type": "string", "minLength": 1},
          "type": {
            "type": "string",
            "enum": ["keyword", "text", "long", "integer", "double", "boolean",
                     "date", "ip", "geo_point", "geo_shape", "nested", "object"]
          },
          "input": {
            "type": "array",
            "items": {
              "oneOf": [
                {"type": "string"},
                {
                  "type": "object",
                  "properties": {
                    "kind": {"type": "string", "enum": ["column", "literal", "jsonpath"]},
                    "name": {"type": "string"},
                    "value": {},
                    "expr": {"type": "string", "maxLength": 1000}
                  }
                }
              ]
            }
          },
          "pipeline": {
            "type": "array",
            "maxItems": 200,
            "items": {"type": "object", "required": ["op"], "properties": {"op": {"type": "string"}}}
          },
          "format": {"type": "string"},
          "analyzer": {"type": "string"},
          "normalizer": {"type": "string"},
          "multi_fields": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name", "type"],
              "properties": {
                "name": {"type": "string", "minLength": 1},
                "type": {"type": "string"},
                "analyzer": {"type": "string"},
                "normalizer": {"type": "string"}
              }
            }
          },
          "ignore_above": {"type": "integer", "minimum": 1},
          "null_value": {},
          "copy_to": {
            "oneOf": [
              {"type": "string"},
              {"type": "array", "items": {"type": "string"}}
            ]
          }
        }
      }
    },
    "dictionaries": {"type": "object"},
    "dynamic_templates": {"type": "array"},
    "runtime_fields": {"type": "object"},
    "settings": {"type": "object"}
  }
}`
