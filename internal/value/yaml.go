package value

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseYAML decodes a YAML document, keeping mapping key order.
func ParseYAML(data []byte) (Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Value{}, err
	}
	return FromYAML(&doc)
}

// FromYAML converts a decoded YAML node tree. Anchors and aliases are
// resolved; merge keys are not supported.
func FromYAML(node *yaml.Node) (Value, error) {
	return fromYAML(node, 0)
}

func fromYAML(node *yaml.Node, depth int) (Value, error) {
	if node == nil {
		return Value{}, nil
	}
	if depth > maxDepth {
		return Value{}, fmt.Errorf("value: yaml nested too deeply")
	}
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return Value{}, nil
		}
		return fromYAML(node.Content[0], depth+1)
	case yaml.AliasNode:
		return fromYAML(node.Alias, depth+1)
	case yaml.SequenceNode:
		out := Value{kind: Sequence, items: make([]Value, 0, len(node.Content))}
		for _, child := range node.Content {
			v, err := fromYAML(child, depth+1)
			if err != nil {
				return Value{}, err
			}
			out.items = append(out.items, v)
		}
		return out, nil
	case yaml.MappingNode:
		out := Value{kind: Mapping, fields: make(map[string]Value, len(node.Content)/2)}
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode := node.Content[i]
			if keyNode.Kind != yaml.ScalarNode {
				return Value{}, fmt.Errorf("value: line %d: mapping keys must be scalars", keyNode.Line)
			}
			if keyNode.Tag == "!!merge" {
				return Value{}, fmt.Errorf("value: line %d: merge keys are not supported", keyNode.Line)
			}
			v, err := fromYAML(node.Content[i+1], depth+1)
			if err != nil {
				return Value{}, err
			}
			out = out.with(keyNode.Value, v)
		}
		return out, nil
	case yaml.ScalarNode:
		return yamlScalar(node)
	}
	return Value{}, fmt.Errorf("value: unsupported yaml node kind %d", node.Kind)
}

func yamlScalar(node *yaml.Node) (Value, error) {
	switch node.ShortTag() {
	case "!!null":
		return Value{}, nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return Value{}, err
		}
		return NewBool(b), nil
	case "!!int":
		var n int64
		if err := node.Decode(&n); err != nil {
			return Value{}, err
		}
		return NewInt(n), nil
	case "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return Value{}, err
		}
		return FromAny(f)
	case "!!timestamp":
		return NewString(node.Value), nil
	default:
		if strings.HasPrefix(node.ShortTag(), "!!") && node.ShortTag() != "!!str" {
			return Value{}, fmt.Errorf("value: line %d: unsupported yaml tag %s", node.Line, strconv.Quote(node.ShortTag()))
		}
		return NewString(node.Value), nil
	}
}
