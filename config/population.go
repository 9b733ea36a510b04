package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Entry is one strategy and its agent count.
type Entry struct {
	Name  string
	Count Scalar
}

// Population is the strategy mapping in document order. Agents are created
// in this order, so it also fixes agent identities. A nil Population means
// the mapping was absent.
type Population []Entry

// Set adds or replaces the count for a strategy, keeping its first position.
func (p *Population) Set(name string, count Scalar) {
	for i := range *p {
		if (*p)[i].Name == name {
			(*p)[i].Count = count
			return
		}
	}
	*p = append(*p, Entry{Name: name, Count: count})
}

// Get returns the count for a strategy.
func (p Population) Get(name string) (Scalar, bool) {
	for _, e := range p {
		if e.Name == name {
			return e.Count, true
		}
	}
	return Scalar{}, false
}

// UnmarshalJSON reads a JSON object while preserving key order.
func (p *Population) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("strategies must be an object of name to count")
	}

	out := Population{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected strategy key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("strategy %q: %w", name, err)
		}
		var count Scalar
		if err := count.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("strategy %q: %w", name, err)
		}
		out.Set(name, count)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*p = out
	return nil
}

// MarshalJSON writes the mapping in order.
func (p Population) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		val, err := e.Count.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalYAML reads a mapping node while preserving key order.
func (p *Population) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null" {
		*p = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: strategies must be a mapping of name to count", node.Line)
	}
	out := Population{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var count Scalar
		if err := count.UnmarshalYAML(node.Content[i+1]); err != nil {
			return fmt.Errorf("strategy %q: %w", node.Content[i].Value, err)
		}
		out.Set(node.Content[i].Value, count)
	}
	*p = out
	return nil
}

// MarshalYAML writes the mapping in order.
func (p Population) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, e := range p {
		val := &yaml.Node{}
		raw, err := e.Count.MarshalYAML()
		if err != nil {
			return nil, err
		}
		if err := val.Encode(raw); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Name},
			val)
	}
	return node, nil
}
