package verdict

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Leaf is one scalar position in a JSON body, with its value rendered
// as a string.
type Leaf struct {
	Path  string
	Value string
}

// Fingerprint returns the structural fingerprint of a body: the
// sorted, deduplicated set of JSON leaf paths. Non-JSON bodies yield
// an empty fingerprint.
func Fingerprint(body []byte) []string {
	leaves, err := JSONLeaves(body)
	if err != nil {
		return nil
	}
	seen := make(map[string]bool, len(leaves))
	paths := make([]string, 0, len(leaves))
	for _, l := range leaves {
		// Array indices collapse so a list of 2 and a list of 20
		// users fingerprint the same shape.
		path := collapseIndices(l.Path)
		if !seen[path] {
			seen[path] = true
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

// JSONLeaves parses a body and returns every scalar leaf with its
// concrete path ("users[2].email").
func JSONLeaves(body []byte) ([]Leaf, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return nil, fmt.Errorf("not a JSON body")
	}
	var value any
	if err := json.Unmarshal([]byte(trimmed), &value); err != nil {
		return nil, err
	}
	var leaves []Leaf
	collectLeaves(value, "", &leaves)
	return leaves, nil
}

func collectLeaves(value any, prefix string, out *[]Leaf) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			child := key
			if prefix != "" {
				child = prefix + "." + key
			}
			collectLeaves(v[key], child, out)
		}
	case []any:
		for i, item := range v {
			collectLeaves(item, fmt.Sprintf("%s[%d]", prefix, i), out)
		}
	case nil:
		*out = append(*out, Leaf{Path: prefix, Value: ""})
	case string:
		*out = append(*out, Leaf{Path: prefix, Value: v})
	case bool:
		*out = append(*out, Leaf{Path: prefix, Value: fmt.Sprintf("%t", v)})
	case float64:
		*out = append(*out, Leaf{Path: prefix, Value: trimFloat(v)})
	default:
		*out = append(*out, Leaf{Path: prefix, Value: fmt.Sprint(v)})
	}
}

// collapseIndices rewrites concrete array indices to a canonical []
// marker for structural comparison.
func collapseIndices(path string) string {
	var sb strings.Builder
	inIndex := false
	for _, r := range path {
		switch {
		case r == '[':
			inIndex = true
			sb.WriteString("[]")
		case r == ']':
			inIndex = false
		case inIndex:
			// digits inside brackets are dropped
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

// identityFields mark resource ownership inside a JSON document.
// User-editable fields are excluded so attacker-controlled content
// cannot fake ownership either way.
var identityFields = []string{
	"id", "userId", "user_id", "uid", "owner_id", "ownerId",
	"created_by", "createdBy", "author_id", "authorId",
	"account_id", "accountId",
}

// ownsIdentity reports whether any identity-named leaf equals the
// given identifier.
func ownsIdentity(leaves []Leaf, identifier string) bool {
	if identifier == "" {
		return false
	}
	for _, l := range leaves {
		name := leafNameExact(l.Path)
		for _, field := range identityFields {
			if name == field && l.Value == identifier {
				return true
			}
		}
	}
	return false
}

func leafNameExact(path string) string {
	if idx := strings.LastIndexByte(path, '.'); idx >= 0 {
		path = path[idx+1:]
	}
	if idx := strings.IndexByte(path, '['); idx >= 0 {
		path = path[:idx]
	}
	return path
}

// jsonObjects returns every JSON object in a body (the root and all
// nested objects), flattened for per-object key inspection.
func jsonObjects(body []byte) ([]map[string]any, error) {
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return nil, err
	}
	var objects []map[string]any
	collectObjects(value, &objects)
	return objects, nil
}

func collectObjects(value any, out *[]map[string]any) {
	switch v := value.(type) {
	case map[string]any:
		*out = append(*out, v)
		for _, child := range v {
			collectObjects(child, out)
		}
	case []any:
		for _, child := range v {
			collectObjects(child, out)
		}
	}
}
