package openapi

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/doppelscan/doppel/pkg/spec"
)

// resolve follows one $ref to its target value. Internal references
// ("#/components/...") resolve within doc; external references load
// and cache the target file after the directory-escape check. The
// visiting set holds "(document)#(pointer)" keys for the current walk;
// re-entry returns errCycle. The returned key must be deleted from the
// visiting set once the caller has finished descending into the target,
// so shared subschemas reached on sibling branches are not mistaken
// for cycles.
func (p *Parser) resolve(doc *document, ref string, visiting map[string]bool) (any, *document, string, error) {
	filePart, pointer, _ := strings.Cut(ref, "#")

	target := doc
	if filePart != "" {
		loaded, err := p.loadExternal(doc, ref, filePart)
		if err != nil {
			return nil, nil, "", err
		}
		target = loaded
	}

	key := target.path + "#" + pointer
	if visiting[key] {
		return nil, nil, "", errCycle
	}
	visiting[key] = true

	value, err := walkPointer(target.root, pointer)
	if err != nil {
		return nil, nil, "", &spec.ParseError{
			File:     target.path,
			Location: "#" + pointer,
			Reason:   "unresolvable $ref",
			Err:      err,
		}
	}
	return value, target, key, nil
}

// loadExternal loads the document referenced by filePart, relative to
// the referencing document. Any target whose canonical path escapes
// the spec's root directory fails the parse.
func (p *Parser) loadExternal(doc *document, ref, filePart string) (*document, error) {
	decoded, err := url.PathUnescape(filePart)
	if err != nil {
		decoded = filePart
	}

	if filepath.IsAbs(decoded) || strings.HasPrefix(decoded, "/") {
		return nil, &spec.SecurityViolation{File: doc.path, Ref: ref, Reason: "absolute reference target"}
	}
	if u, err := url.Parse(decoded); err == nil && u.Scheme != "" {
		return nil, &spec.SecurityViolation{File: doc.path, Ref: ref, Reason: "remote reference target"}
	}

	// Symlinks can re-route an in-tree path outside the root, so the
	// containment check runs on the fully resolved path.
	candidate := resolveSymlinks(filepath.Clean(filepath.Join(doc.dir, filepath.FromSlash(decoded))))
	if err := p.checkInsideRoot(doc, ref, candidate); err != nil {
		return nil, err
	}

	return p.loadDocument(candidate)
}

// checkInsideRoot verifies candidate lives under the spec root.
func (p *Parser) checkInsideRoot(doc *document, ref, candidate string) error {
	root := resolveSymlinks(p.rootDir)
	rel, err := filepath.Rel(root, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return &spec.SecurityViolation{File: doc.path, Ref: ref, Reason: "reference escapes spec directory"}
	}
	return nil
}

// resolveSymlinks canonicalizes a path. Nonexistent targets resolve
// their parent directory so escape checks compare like with like.
func resolveSymlinks(path string) string {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real
	}
	dir, base := filepath.Split(filepath.Clean(path))
	if real, err := filepath.EvalSymlinks(filepath.Clean(dir)); err == nil {
		return filepath.Join(real, base)
	}
	return path
}

// walkPointer follows an RFC 6901 JSON pointer through a decoded
// document tree. An empty pointer returns the whole document.
func walkPointer(root any, pointer string) (any, error) {
	if pointer == "" {
		return root, nil
	}
	pointer = strings.TrimPrefix(pointer, "/")

	current := root
	for _, token := range strings.Split(pointer, "/") {
		token = strings.ReplaceAll(token, "~1", "/")
		token = strings.ReplaceAll(token, "~0", "~")

		switch node := current.(type) {
		case map[string]any:
			next, ok := node[token]
			if !ok {
				return nil, fmt.Errorf("missing key %q", token)
			}
			current = next
		case []any:
			idx, err := parseIndex(token)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("bad array index %q", token)
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("cannot descend into scalar at %q", token)
		}
	}
	return current, nil
}

func parseIndex(token string) (int, error) {
	if token == "" {
		return 0, errors.New("empty index")
	}
	n := 0
	for _, c := range token {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("non-numeric index %q", token)
		}
		n = n*10 + int(c-'0')
		if n > 1<<20 {
			return 0, errors.New("index out of range")
		}
	}
	return n, nil
}

// derefSchema follows $ref chains on a schema object until a concrete
// schema (or a cycle) is reached. Cycles return a nil schema, which
// callers treat as an unknown leaf.
func (p *Parser) derefSchema(doc *document, schema map[string]any, visiting map[string]bool) (map[string]any, *document, error) {
	for {
		ref := getString(schema, "$ref")
		if ref == "" {
			return schema, doc, nil
		}
		resolved, targetDoc, _, err := p.resolve(doc, ref, visiting)
		if err != nil {
			if errors.Is(err, errCycle) {
				return nil, doc, nil
			}
			return nil, nil, err
		}
		next, ok := asMap(resolved)
		if !ok {
			return nil, doc, nil
		}
		schema, doc = next, targetDoc
	}
}

// asMap normalizes a decoded YAML/JSON node to a string-keyed map.
func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func getString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func getBool(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

// enumStrings renders a schema enum as strings.
func enumStrings(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		out = append(out, fmt.Sprint(item))
	}
	return out
}

// mapType normalizes a schema type string to the shared Type enum.
func mapType(t string) spec.Type {
	switch t {
	case "string":
		return spec.TypeString
	case "integer":
		return spec.TypeInteger
	case "number":
		return spec.TypeNumber
	case "boolean":
		return spec.TypeBoolean
	case "array":
		return spec.TypeArray
	case "object":
		return spec.TypeObject
	default:
		return spec.TypeUnknown
	}
}
