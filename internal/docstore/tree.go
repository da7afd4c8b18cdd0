package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// PartitionDepth is the number of leading path segments that identify the
// unit of persistence ("transactions/{uid}").
const PartitionDepth = 2

// SplitPath validates a path and returns its segments.
func SplitPath(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	segs := strings.Split(path, "/")
	for _, s := range segs {
		if err := validKey(s); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPath, path, err)
		}
	}
	return segs, nil
}

// JoinPath joins segments with "/".
func JoinPath(segs ...string) string {
	return strings.Join(segs, "/")
}

func validKey(k string) error {
	if k == "" {
		return fmt.Errorf("empty segment")
	}
	if strings.ContainsAny(k, ".#$[]/") {
		return fmt.Errorf("segment %q contains a forbidden character", k)
	}
	return nil
}

// PartitionPrefix returns the partition key covering segs. Paths shallower
// than a partition cover every partition below them.
func PartitionPrefix(segs []string) string {
	if len(segs) > PartitionDepth {
		segs = segs[:PartitionDepth]
	}
	return JoinPath(segs...)
}

// UnderPrefix reports whether a partition key lies at or below prefix.
func UnderPrefix(key, prefix string) bool {
	return key == prefix || strings.HasPrefix(key, prefix+"/")
}

// related reports whether a write at a can change the value seen at b.
func related(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Normalize converts any JSON-encodable value into a tree of map[string]any,
// []any, string, json.Number and bool, pruning nulls and empty objects.
func Normalize(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	var raw []byte
	switch v := value.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		raw = b
	}
	tree, err := decodeTree(raw)
	if err != nil {
		return nil, err
	}
	return prune(tree)
}

func decodeTree(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return tree, nil
}

func prune(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if err := validKey(k); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
			}
			p, err := prune(child)
			if err != nil {
				return nil, err
			}
			if p == nil {
				delete(t, k)
				continue
			}
			t[k] = p
		}
		if len(t) == 0 {
			return nil, nil
		}
		return t, nil
	case []any:
		for i, child := range t {
			p, err := prune(child)
			if err != nil {
				return nil, err
			}
			t[i] = p
		}
		return t, nil
	default:
		return v, nil
	}
}

// getAt walks segs from node.
func getAt(node any, segs []string) (any, bool) {
	for _, s := range segs {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[s]
		if !ok || node == nil {
			return nil, false
		}
	}
	return node, node != nil
}

// setAt stores value below node and returns the new node. Setting nil
// removes the entry and prunes parents left empty.
func setAt(node any, segs []string, value any) any {
	if len(segs) == 0 {
		return value
	}
	m, ok := node.(map[string]any)
	if !ok {
		if value == nil {
			return node
		}
		m = map[string]any{}
	}
	child := setAt(m[segs[0]], segs[1:], value)
	if child == nil {
		delete(m, segs[0])
	} else {
		m[segs[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// assemble rebuilds the tree from partition documents.
func assemble(docs map[string][]byte) (map[string]any, error) {
	root := map[string]any{}
	for key, doc := range docs {
		segs := strings.Split(key, "/")
		v, err := decodeTree(doc)
		if err != nil {
			return nil, fmt.Errorf("partition %s: %w", key, err)
		}
		if v == nil {
			continue
		}
		setAt(root, segs, v)
	}
	return root, nil
}

// partitions encodes every partition of root that lies under prefix.
func partitions(root map[string]any, prefix string) (map[string][]byte, error) {
	segs := strings.Split(prefix, "/")
	out := map[string][]byte{}
	v, ok := getAt(root, segs)
	if !ok {
		return out, nil
	}
	if len(segs) >= PartitionDepth {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[prefix] = b
		return out, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must hold an object", ErrInvalidValue, prefix)
	}
	for k, child := range m {
		b, err := json.Marshal(child)
		if err != nil {
			return nil, err
		}
		out[prefix+"/"+k] = b
	}
	return out, nil
}
