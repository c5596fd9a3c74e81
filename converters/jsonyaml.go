package converters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/evaluation"
	ijson "github.com/richinex/transmute/internal/json"
	"github.com/richinex/transmute/internal/textenc"
	"github.com/richinex/transmute/model"
)

// CodeInvalidYAML flags output that does not parse back as YAML.
const CodeInvalidYAML = "INVALID_YAML"

// JSONYAML converts JSON (or JSON5) documents to YAML, keeping key order.
func JSONYAML(kit Kit) converter.Spec {
	return converter.Spec{
		Descriptor: model.NewDescriptor(model.DescriptorSpec{
			ID:          "json-to-yaml",
			Name:        "JSON to YAML",
			Description: "Converts JSON documents to block-style YAML",
			Category:    "JSON document",
			From:        []string{"json", "json5"},
			To:          []string{"yaml"},
			Strategies: []model.Strategy{
				{ID: "block", Description: "Block style in source key order", When: "the default",
					Engine: "yaml.v3", Mode: model.ModeSymbolic, Speed: model.SpeedFast, Quality: model.QualityHigh},
				{ID: "sorted", Description: "Block style with keys sorted", When: "diff-friendly output is wanted",
					Engine: "yaml.v3", Mode: model.ModeSymbolic, Speed: model.SpeedFast, Quality: model.QualityHigh},
			},
		}),
		Execute: func(_ context.Context, _ *converter.Workspace, input model.Artifact, strategy string, opts converter.Options) (model.ExecuteResult, error) {
			return convertJSON(input, strategy, opts)
		},
		Checks: func(_, output model.Artifact, _ string) []model.Issue {
			issues, ok := evaluation.CheckNonEmpty(output, 0)
			if !ok {
				return issues
			}
			data, err := output.Bytes()
			if err != nil {
				return append(issues, evaluation.Error(evaluation.CodeEvaluationFailed, err.Error(), true))
			}
			var v any
			if err := yaml.Unmarshal(data, &v); err != nil {
				issues = append(issues, evaluation.Error(CodeInvalidYAML, "output does not parse as YAML: "+err.Error(), true))
			}
			return issues
		},
	}
}

func convertJSON(input model.Artifact, strategy string, opts converter.Options) (model.ExecuteResult, error) {
	if strategy != "block" && strategy != "sorted" {
		return model.ExecuteResult{}, converter.InvalidInput("unknown json strategy %q", strategy)
	}
	data, err := input.Bytes()
	if err != nil {
		return model.ExecuteResult{}, converter.InvalidInput("read json: %v", err)
	}
	text, _, err := textenc.ToUTF8(data, "application/json")
	if err != nil {
		return model.ExecuteResult{}, converter.InvalidInput("decode json: %v", err)
	}

	node, lenient, err := parseJSONNode(text)
	if err != nil {
		return model.ExecuteResult{}, converter.Crash(evaluation.CodeOutputEmpty, err)
	}
	if strategy == "sorted" {
		sortKeys(node)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(opts.Int("indent", 2))
	if err := enc.Encode(node); err != nil {
		return model.ExecuteResult{}, converter.Crash(CodeInvalidOutput, fmt.Errorf("encode yaml: %w", err))
	}
	if err := enc.Close(); err != nil {
		return model.ExecuteResult{}, converter.Crash(CodeInvalidOutput, err)
	}
	return model.ExecuteResult{
		Output:   model.BytesArtifact(buf.Bytes(), opts.Target),
		Metadata: map[string]any{"json5": lenient},
	}, nil
}

// parseJSONNode parses strict JSON into an ordered YAML node, falling back
// to JSON5 for comments, single quotes, trailing commas and unquoted keys. json5 decodes
// into maps, so JSON5 input comes out with sorted keys.
func parseJSONNode(text []byte) (*yaml.Node, bool, error) {
	if json.Valid(text) {
		node, err := jsonNode(json.NewDecoder(bytes.NewReader(text)))
		return node, false, err
	}
	var v any
	if err := ijson.DecodeJSON5(text, &v); err != nil {
		return nil, false, fmt.Errorf("parse json: %w", err)
	}
	strict, err := json.Marshal(v)
	if err != nil {
		return nil, true, fmt.Errorf("normalize json5: %w", err)
	}
	node, err := jsonNode(json.NewDecoder(bytes.NewReader(strict)))
	return node, true, err
}

// jsonNode reads one JSON value from dec as a YAML node, keeping object
// key order.
func jsonNode(dec *json.Decoder) (*yaml.Node, error) {
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return valueNode(dec, tok)
}

func valueNode(dec *json.Decoder, tok json.Token) (*yaml.Node, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %T", keyTok)
				}
				valTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				val, err := valueNode(dec, valTok)
				if err != nil {
					return nil, err
				}
				node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return node, nil
		case '[':
			node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			for dec.More() {
				elemTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				elem, err := valueNode(dec, elemTok)
				if err != nil {
					return nil, err
				}
				node.Content = append(node.Content, elem)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return node, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %q", t)
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: t}, nil
	case json.Number:
		tag := "!!int"
		if _, err := t.Int64(); err != nil {
			tag = "!!float"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: t.String()}, nil
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: fmt.Sprint(t)}, nil
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

// sortKeys orders every mapping in the tree by key.
func sortKeys(n *yaml.Node) {
	if n.Kind == yaml.MappingNode {
		pairs := make([][2]*yaml.Node, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			pairs = append(pairs, [2]*yaml.Node{n.Content[i], n.Content[i+1]})
		}
		sort.SliceStable(pairs, func(i, j int) bool { return pairs[i][0].Value < pairs[j][0].Value })
		n.Content = n.Content[:0]
		for _, p := range pairs {
			n.Content = append(n.Content, p[0], p[1])
		}
	}
	for _, c := range n.Content {
		sortKeys(c)
	}
}
