package iac

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"repograph/internal/rules"
)

const cfnEvidenceWeight = 1.0

// IsCloudFormation reports CloudFormation and SAM templates by their markers.
func IsCloudFormation(content []byte) bool {
	return bytes.Contains(content, []byte("AWSTemplateFormatVersion")) ||
		bytes.Contains(content, []byte("AWS::Serverless")) ||
		(bytes.Contains(content, []byte("Resources")) && bytes.Contains(content, []byte("AWS::")))
}

// cloudFormation extracts the resources of a CloudFormation or SAM template,
// written in YAML or JSON. Line numbers come from the resource's key.
func (d *Detector) cloudFormation(path string, src []byte) Result {
	root, err := parseYAML(src)
	if err != nil {
		d.logger.Debug().Err(err).Str("file", path).Msg("skipping malformed template")
		return Result{}
	}
	resources := mappingValue(root, "Resources")
	if resources == nil || resources.Kind != yaml.MappingNode {
		return Result{}
	}
	sam := mappingValue(root, "Transform") != nil

	var out Result
	for i := 0; i+1 < len(resources.Content); i += 2 {
		key, def := resources.Content[i], resources.Content[i+1]
		typeNode := mappingValue(def, "Type")
		if typeNode == nil || typeNode.Kind != yaml.ScalarNode {
			continue
		}
		rule, ok := d.rules.Lookup(rules.IaCResources, typeNode.Value)
		if !ok {
			continue
		}
		typ, err := ParseEntityType(rule.Kind)
		if err != nil {
			continue
		}

		name := key.Value
		e := NewEntity(typ, name, providerOr(rule.Provider), path, key.Line, nil)
		e.Add(fmt.Sprintf("cloudformation resource %s (%s)", name, typeNode.Value), cfnEvidenceWeight)
		e.SetConfig("name", name)
		e.SetConfig("resource_type", typeNode.Value)
		if sam {
			e.SetConfig("template", "sam")
		}

		props := mappingValue(def, "Properties")
		text := ""
		if props != nil {
			e.SetConfig("properties", nodeValue(props))
			text = renderYAML(props)
			e.SetConfig("arn", findARN(text))
		}
		if typ == LambdaFunction {
			e.SetConfig("runtime", scalar(mappingValue(props, "Runtime")))
			e.SetConfig("handler", scalar(mappingValue(props, "Handler")))
			e.SetConfig("role", resourceRef(mappingValue(props, "Role")))
		}

		if !e.Accepted(d.threshold) {
			continue
		}
		out.Entities = append(out.Entities, e)
		out.Vulnerabilities = append(out.Vulnerabilities, Evaluate(e, text)...)
	}
	return out
}

func parseYAML(src []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	return doc.Content[0], nil
}

// mappingValue returns the value node stored under key in a mapping node.
func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func scalar(n *yaml.Node) string {
	if n == nil || n.Kind != yaml.ScalarNode {
		return ""
	}
	return n.Value
}

// resourceRef resolves !Ref X, !GetAtt X.Arn and their long forms to X.
// Plain scalars are returned as written.
func resourceRef(n *yaml.Node) string {
	if n == nil {
		return ""
	}
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!GetAtt" {
			name, _, _ := strings.Cut(n.Value, ".")
			return name
		}
		return n.Value
	case yaml.SequenceNode:
		if n.Tag == "!GetAtt" && len(n.Content) > 0 {
			return scalar(n.Content[0])
		}
	case yaml.MappingNode:
		if ref := mappingValue(n, "Ref"); ref != nil {
			return scalar(ref)
		}
		if att := mappingValue(n, "Fn::GetAtt"); att != nil {
			if att.Kind == yaml.SequenceNode && len(att.Content) > 0 {
				return scalar(att.Content[0])
			}
			name, _, _ := strings.Cut(scalar(att), ".")
			return name
		}
	}
	return ""
}

// nodeValue converts a node into plain maps, slices and strings. Intrinsic
// function tags are kept as a prefix of the scalar, e.g. "!Ref Bucket".
func nodeValue(n *yaml.Node) any {
	switch n.Kind {
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			out[n.Content[i].Value] = nodeValue(n.Content[i+1])
		}
		return out
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			out = append(out, nodeValue(c))
		}
		return out
	case yaml.AliasNode:
		if n.Alias != nil {
			return nodeValue(n.Alias)
		}
		return nil
	default:
		if strings.HasPrefix(n.Tag, "!") && !strings.HasPrefix(n.Tag, "!!") {
			return n.Tag + " " + n.Value
		}
		return n.Value
	}
}

func renderYAML(n *yaml.Node) string {
	out, err := yaml.Marshal(n)
	if err != nil {
		return ""
	}
	return string(out)
}
