package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"talon/internal/types"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// fragmentSchema is the single accepted input shape. Anything the external
// normalizer failed to reduce to this shape is rejected before it can touch
// the context store.
const fragmentSchema = `{
  "type": "object",
  "required": ["source", "symbol", "received_at"],
  "properties": {
    "source": {"type": "string", "enum": ["regime", "expert", "flow_expert", "alignment", "structure"]},
    "symbol": {"type": "string", "minLength": 1},
    "received_at": {"type": "string", "format": "date-time"},
    "regime": {
      "type": "object",
      "required": ["phase", "bias", "confidence"],
      "properties": {
        "phase": {"type": "string"},
        "bias": {"type": "string", "enum": ["BULLISH", "BEARISH", "NEUTRAL"]},
        "confidence": {"type": "number", "minimum": 0, "maximum": 100},
        "vol_regime": {"type": "string"}
      }
    },
    "expert": {
      "type": "object",
      "required": ["direction", "quality", "strength", "timeframe"],
      "properties": {
        "direction": {"type": "string", "enum": ["LONG", "SHORT"]},
        "quality": {"type": "string", "enum": ["HIGH", "MEDIUM", "LOW"]},
        "strength": {"type": "number", "minimum": 0, "maximum": 100},
        "timeframe": {"type": "string"}
      }
    },
    "alignment": {
      "type": "object",
      "required": ["timeframe_bias"],
      "properties": {
        "timeframe_bias": {
          "type": "object",
          "additionalProperties": {"type": "number", "minimum": 0, "maximum": 100}
        }
      }
    },
    "structure": {
      "type": "object",
      "required": ["setup_valid", "liquidity_score"],
      "properties": {
        "setup_valid": {"type": "boolean"},
        "liquidity_score": {"type": "number", "minimum": 0, "maximum": 100},
        "swept_liquidity": {"type": "boolean"}
      }
    }
  }
}`

type fragmentValidator struct {
	schema *jsonschema.Schema
}

func newFragmentValidator() (*fragmentValidator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("fragment.json", strings.NewReader(fragmentSchema)); err != nil {
		return nil, fmt.Errorf("adding fragment schema: %w", err)
	}
	schema, err := compiler.Compile("fragment.json")
	if err != nil {
		return nil, fmt.Errorf("compiling fragment schema: %w", err)
	}
	return &fragmentValidator{schema: schema}, nil
}

// parse validates the raw body against the schema, checks that the payload
// section matches the declared source, and decodes the typed fragment.
func (v *fragmentValidator) parse(body []byte) (*types.ContextFragment, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not valid json", types.ErrValidation)
	}
	var doc any
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrValidation, err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrValidation, err)
	}

	source := gjson.GetBytes(body, "source").String()
	payloadField := source
	if source == string(types.SourceFlowExpert) {
		payloadField = "expert"
	}
	if !gjson.GetBytes(body, payloadField).Exists() {
		return nil, fmt.Errorf("%w: source %q requires %q payload", types.ErrValidation, source, payloadField)
	}

	var frag types.ContextFragment
	if err := json.Unmarshal(body, &frag); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrValidation, err)
	}
	if err := frag.Validate(); err != nil {
		return nil, err
	}
	return &frag, nil
}
