package util

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// GetYamlLocation fetches a descriptive location of YAML node
func GetYamlLocation(node *yaml.Node) string {
	var title string
	switch {
	case len(node.HeadComment) > 0:
		title = " " + node.HeadComment
	case len(node.Anchor) > 0:
		title = " " + node.Anchor
	default:
		title = ""
	}
	return fmt.Sprintf("yaml line %d:%d%s", node.Line, node.Column, title)
}

// MarshalYaml marshals the given source to a YAML string
func MarshalYaml(source interface{}) (string, error) {
	writer := &bytes.Buffer{}
	encoder := yaml.NewEncoder(writer)
	encoder.SetIndent(2)
	if err := encoder.Encode(source); err != nil {
		return "", err
	}
	if err := encoder.Close(); err != nil {
		return "", err
	}
	return writer.String(), nil
}

// NewYamlError creates a new error with location information of YAML node
func NewYamlError(node *yaml.Node, message string) error {
	return fmt.Errorf("yaml line %d:%d: %s", node.Line, node.Column, message)
}

// UnmarshalYamlFile loads and unmarshals YAML from file to interface or pointer to struct
func UnmarshalYamlFile(path string, output interface{}) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return UnmarshalYamlReader(file, output)
}

// UnmarshalYamlReader loads and unmarshals YAML from IO reader to interface or pointer to struct
func UnmarshalYamlReader(reader io.Reader, output interface{}) error {
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true) // only works outside of custom unmarshalers
	return decoder.Decode(output)
}

// DecodeYamlNodeKnownFields decodes a node like yaml.Node.Decode, but disallows unknown fields
//
// yaml.v3 doesn't apply KnownFields inside of custom unmarshalers, so the node is re-encoded and decoded again.
// Aliases are expanded beforehand since their anchors may be defined outside of the node, e.g. in "anchors:".
func DecodeYamlNodeKnownFields(node *yaml.Node, output interface{}) error {
	resolved, err := resolveYamlAliases(node, make(map[*yaml.Node]bool))
	if err != nil {
		return err
	}
	buf := &bytes.Buffer{}
	encoder := yaml.NewEncoder(buf)
	if err := encoder.Encode(resolved); err != nil {
		return fmt.Errorf("failed to re-encode: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to re-encode: %w", err)
	}
	return UnmarshalYamlReader(buf, output)
}

// resolveYamlAliases returns a copy of the node tree with all aliases replaced by copies of their anchored nodes
//
// Anchors are dropped from the copy, as nothing refers to them anymore.
func resolveYamlAliases(node *yaml.Node, expanding map[*yaml.Node]bool) (*yaml.Node, error) {
	if node.Kind == yaml.AliasNode {
		target := node.Alias
		if target == nil {
			return nil, NewYamlError(node, fmt.Sprintf("unknown anchor '%s' referenced", node.Value))
		}
		if expanding[target] {
			return nil, NewYamlError(node, fmt.Sprintf("anchor '%s' references itself", node.Value))
		}
		expanding[target] = true
		defer delete(expanding, target)
		return resolveYamlAliases(target, expanding)
	}

	clone := *node
	clone.Anchor = ""
	if len(node.Content) > 0 {
		clone.Content = make([]*yaml.Node, len(node.Content))
		for i, child := range node.Content {
			resolvedChild, err := resolveYamlAliases(child, expanding)
			if err != nil {
				return nil, err
			}
			clone.Content[i] = resolvedChild
		}
	}
	return &clone, nil
}

// UnmarshalYamlString loads and unmarshals YAML in string to interface or pointer to struct
func UnmarshalYamlString(contents string, output interface{}) error {
	reader := strings.NewReader(contents)
	return UnmarshalYamlReader(reader, output)
}
