package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// RuleConfig is the declarative description of one rule instance.
//
// On the wire it is a flat object: "class", "active" and "error_message" are
// reserved keys, every other key is a rule parameter. Composite rules nest
// further rule lists under "if_conditionals", "then_conditionals" and
// "else_conditionals".
type RuleConfig struct {
	// Class is the registry name of the rule type.
	Class string

	// Active defaults to true when absent from the stored form.
	Active bool

	// ErrorMessage overrides the rule's default failure text when non-empty.
	ErrorMessage string

	// Params holds every non-reserved key.
	Params map[string]any
}

// Reserved configuration keys.
const (
	KeyClass        = "class"
	KeyActive       = "active"
	KeyErrorMessage = "error_message"
)

// NewRuleConfig builds an active configuration for class with params.
func NewRuleConfig(class string, params map[string]any) RuleConfig {
	if params == nil {
		params = map[string]any{}
	}
	return RuleConfig{Class: class, Active: true, Params: params}
}

// UnmarshalJSON decodes the flat stored form.
func (c *RuleConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("rule config: %w", err)
	}
	return c.FromMap(raw)
}

// FromMap fills c from an already decoded flat object.
func (c *RuleConfig) FromMap(raw map[string]any) error {
	*c = RuleConfig{Active: true, Params: make(map[string]any, len(raw))}

	for k, v := range raw {
		switch k {
		case KeyClass:
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("rule config: %q must be a string, got %T", KeyClass, v)
			}
			c.Class = s
		case KeyActive:
			if v == nil {
				continue
			}
			b, ok := v.(bool)
			if !ok {
				return fmt.Errorf("rule config %s: %q must be a boolean, got %T", c.Class, KeyActive, v)
			}
			c.Active = b
		case KeyErrorMessage:
			if v == nil {
				continue
			}
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("rule config %s: %q must be a string, got %T", c.Class, KeyErrorMessage, v)
			}
			c.ErrorMessage = s
		default:
			c.Params[k] = v
		}
	}

	if c.Class == "" {
		return fmt.Errorf("rule config: %q is required", KeyClass)
	}
	return nil
}

// MarshalJSON encodes the flat stored form with stable key order.
func (c RuleConfig) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		if k == KeyClass || k == KeyActive || k == KeyErrorMessage {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	write := func(key string, value any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(key)
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("rule config %s: param %s: %w", c.Class, key, err)
		}
		buf.Write(vb)
		return nil
	}

	if err := write(KeyClass, c.Class); err != nil {
		return nil, err
	}
	if err := write(KeyActive, c.Active); err != nil {
		return nil, err
	}
	if c.ErrorMessage != "" {
		if err := write(KeyErrorMessage, c.ErrorMessage); err != nil {
			return nil, err
		}
	}
	for _, k := range keys {
		if err := write(k, c.Params[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ParseRuleConfigs decodes a JSON list of rule configurations.
func ParseRuleConfigs(data []byte) ([]RuleConfig, error) {
	var cfgs []RuleConfig
	if err := json.Unmarshal(data, &cfgs); err != nil {
		return nil, err
	}
	return cfgs, nil
}
