package openapi

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/doppelscan/doppel/pkg/spec"
)

// Media types the request body extractor understands, in preference
// order. A JSON variant shadows everything else.
var recognizedMediaTypes = []string{
	"application/json",
	"application/x-www-form-urlencoded",
	"multipart/form-data",
	"application/xml",
	"text/plain",
}

// leaf is one flattened scalar position of a body schema.
type leaf struct {
	path     string
	typ      spec.Type
	required bool
	optional bool // set when the leaf came from a oneOf/anyOf branch
	example  any
	enum     []string
}

// requestBodyLeaves resolves the operation's request body and returns
// one Body parameter per schema leaf, plus an example payload when the
// document carries one. Leaves are sorted by dotted path so repeated
// parses are byte-identical.
func (p *Parser) requestBodyLeaves(doc *document, op map[string]any) ([]spec.Parameter, []byte, error) {
	rb, ok := asMap(op["requestBody"])
	if !ok {
		return nil, nil, nil
	}

	if ref := getString(rb, "$ref"); ref != "" {
		resolved, targetDoc, _, err := p.resolve(doc, ref, make(map[string]bool))
		if err != nil {
			if errors.Is(err, errCycle) {
				return nil, nil, nil
			}
			return nil, nil, err
		}
		rm, ok := asMap(resolved)
		if !ok {
			return nil, nil, nil
		}
		rb, doc = rm, targetDoc
	}

	content, ok := asMap(rb["content"])
	if !ok {
		return nil, nil, nil
	}
	bodyRequired := getBool(rb, "required")

	chosen := chooseMediaTypes(content)
	var (
		leaves  []leaf
		example []byte
	)
	for _, mt := range chosen {
		media, ok := asMap(content[mt])
		if !ok {
			continue
		}
		if example == nil && media["example"] != nil {
			if data, err := json.Marshal(media["example"]); err == nil {
				example = data
			}
		}
		schema, ok := asMap(media["schema"])
		if !ok {
			continue
		}
		if err := p.flatten(doc, schema, "", bodyRequired, false, 0, make(map[string]bool), &leaves); err != nil {
			return nil, nil, err
		}
	}

	return leavesToParameters(leaves), example, nil
}

// chooseMediaTypes picks which content entries to flatten: the JSON
// variant alone when present, otherwise every recognized media type.
func chooseMediaTypes(content map[string]any) []string {
	if _, ok := content["application/json"]; ok {
		return []string{"application/json"}
	}
	var jsonVariants []string
	for mt := range content {
		if strings.Contains(mt, "json") {
			jsonVariants = append(jsonVariants, mt)
		}
	}
	if len(jsonVariants) > 0 {
		sort.Strings(jsonVariants)
		return jsonVariants[:1]
	}
	var chosen []string
	for _, mt := range recognizedMediaTypes {
		if _, ok := content[mt]; ok {
			chosen = append(chosen, mt)
		}
	}
	return chosen
}

// flatten walks a schema emitting one leaf per scalar position.
// Composition keywords expand as: allOf = union of branch leaves
// (deduplicated by path, type conflicts degrade), oneOf/anyOf = union
// with every leaf optional. Reference cycles and the depth cap emit an
// unknown leaf instead of recursing further.
func (p *Parser) flatten(doc *document, schema map[string]any, prefix string, required, optional bool, depth int, visiting map[string]bool, out *[]leaf) error {
	if len(*out) >= maxBodyLeaves {
		return nil
	}
	if depth > maxSchemaDepth {
		appendLeaf(out, leaf{path: prefix, typ: spec.TypeUnknown, optional: optional})
		return nil
	}

	if ref := getString(schema, "$ref"); ref != "" {
		resolved, targetDoc, key, err := p.resolve(doc, ref, visiting)
		if err != nil {
			if errors.Is(err, errCycle) {
				appendLeaf(out, leaf{path: prefix, typ: spec.TypeUnknown, optional: optional})
				return nil
			}
			return err
		}
		rm, ok := asMap(resolved)
		if !ok {
			appendLeaf(out, leaf{path: prefix, typ: spec.TypeUnknown, optional: optional})
			delete(visiting, key)
			return nil
		}
		err = p.flatten(targetDoc, rm, prefix, required, optional, depth+1, visiting, out)
		delete(visiting, key)
		return err
	}

	if branches, ok := schema["allOf"].([]any); ok {
		return p.flattenAllOf(doc, schema, branches, prefix, required, optional, depth, visiting, out)
	}

	for _, keyword := range []string{"oneOf", "anyOf"} {
		branches, ok := schema[keyword].([]any)
		if !ok {
			continue
		}
		for _, branch := range branches {
			bm, ok := asMap(branch)
			if !ok {
				continue
			}
			if err := p.flatten(doc, bm, prefix, required, true, depth+1, visiting, out); err != nil {
				return err
			}
		}
		return nil
	}

	typ := getString(schema, "type")
	props, hasProps := asMap(schema["properties"])

	switch {
	case typ == "object" || hasProps:
		if !hasProps || len(props) == 0 {
			appendLeaf(out, leaf{path: prefix, typ: spec.TypeObject, required: required, optional: optional})
			return nil
		}
		requiredSet := make(map[string]bool)
		if names, ok := schema["required"].([]any); ok {
			for _, n := range names {
				if s, ok := n.(string); ok {
					requiredSet[s] = true
				}
			}
		}
		for _, name := range sortedKeys(props) {
			child, ok := asMap(props[name])
			if !ok {
				appendLeaf(out, leaf{path: joinPath(prefix, name), typ: spec.TypeUnknown, optional: optional})
				continue
			}
			if err := p.flatten(doc, child, joinPath(prefix, name), requiredSet[name], optional, depth+1, visiting, out); err != nil {
				return err
			}
		}
		return nil

	case typ == "array":
		items, ok := asMap(schema["items"])
		if !ok {
			appendLeaf(out, leaf{path: prefix + "[0]", typ: spec.TypeUnknown, optional: optional})
			return nil
		}
		return p.flatten(doc, items, prefix+"[0]", required, optional, depth+1, visiting, out)

	default:
		name := prefix
		if name == "" {
			// Top-level scalar body: address the whole payload.
			name = "body"
		}
		appendLeaf(out, leaf{
			path:     name,
			typ:      mapType(typ),
			required: required,
			optional: optional,
			example:  firstNonNil(schema["example"], schema["default"]),
			enum:     enumStrings(schema["enum"]),
		})
		return nil
	}
}

// flattenAllOf expands an allOf union: the leaves of every branch plus
// the enclosing schema's own properties, deduplicated by path.
func (p *Parser) flattenAllOf(doc *document, schema map[string]any, branches []any, prefix string, required, optional bool, depth int, visiting map[string]bool, out *[]leaf) error {
	var union []leaf
	collect := func(sub map[string]any) error {
		var branchLeaves []leaf
		if err := p.flatten(doc, sub, prefix, required, optional, depth+1, visiting, &branchLeaves); err != nil {
			return err
		}
		union = mergeLeaves(union, branchLeaves)
		return nil
	}

	for _, branch := range branches {
		bm, ok := asMap(branch)
		if !ok {
			continue
		}
		if err := collect(bm); err != nil {
			return err
		}
	}

	// A schema may carry inline properties alongside allOf.
	if _, ok := asMap(schema["properties"]); ok {
		inline := make(map[string]any, len(schema))
		for k, v := range schema {
			if k != "allOf" {
				inline[k] = v
			}
		}
		if err := collect(inline); err != nil {
			return err
		}
	}

	for _, l := range union {
		appendLeaf(out, l)
	}
	return nil
}

// mergeLeaves unions two leaf sets by path. Conflicting declared types
// resolve to the more specific one when comparable, unknown otherwise.
func mergeLeaves(base, extra []leaf) []leaf {
	index := make(map[string]int, len(base))
	for i, l := range base {
		index[l.path] = i
	}
	for _, l := range extra {
		i, ok := index[l.path]
		if !ok {
			index[l.path] = len(base)
			base = append(base, l)
			continue
		}
		base[i].typ = mergeTypes(base[i].typ, l.typ)
		base[i].required = base[i].required || l.required
		if base[i].example == nil {
			base[i].example = l.example
		}
		if base[i].enum == nil {
			base[i].enum = l.enum
		}
	}
	return base
}

func mergeTypes(a, b spec.Type) spec.Type {
	switch {
	case a == b:
		return a
	case a == spec.TypeUnknown:
		return b
	case b == spec.TypeUnknown:
		return a
	case (a == spec.TypeInteger && b == spec.TypeNumber) || (a == spec.TypeNumber && b == spec.TypeInteger):
		return spec.TypeInteger
	default:
		return spec.TypeUnknown
	}
}

// appendLeaf adds a leaf unless the cap is hit or the path is empty.
func appendLeaf(out *[]leaf, l leaf) {
	if l.path == "" || len(*out) >= maxBodyLeaves {
		return
	}
	*out = append(*out, l)
}

// leavesToParameters deduplicates by path, sorts, and converts.
func leavesToParameters(leaves []leaf) []spec.Parameter {
	merged := mergeLeaves(nil, leaves)
	sort.Slice(merged, func(i, j int) bool { return merged[i].path < merged[j].path })

	params := make([]spec.Parameter, 0, len(merged))
	for _, l := range merged {
		params = append(params, spec.Parameter{
			Name:     l.path,
			In:       spec.LocationBody,
			Required: l.required && !l.optional,
			Type:     l.typ,
			Example:  l.example,
			Enum:     l.enum,
		})
	}
	return params
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
