package parser

import (
	"fmt"
	"sort"
	"strings"
)

var ErrInvalidResults = fmt.Errorf("invalid sparql results document")

// Term is one RDF term bound in a solution.
type Term struct {
	Type     string // uri, literal or bnode
	Value    string
	Datatype string
	Lang     string
}

// String renders the term close to its N-Triples form. Blank node labels are
// dropped since they are scoped to a single document.
func (t Term) String() string {
	switch t.Type {
	case "uri":
		return "<" + t.Value + ">"
	case "bnode":
		return "_:b"
	}
	s := fmt.Sprintf("%q", t.Value)
	if t.Lang != "" {
		return s + "@" + strings.ToLower(t.Lang)
	}
	if t.Datatype != "" {
		return s + "^^<" + t.Datatype + ">"
	}
	return s
}

// SPARQLResults holds either an ASK answer or a table of solutions.
type SPARQLResults struct {
	Variables []string
	Boolean   *bool
	Bindings  []map[string]Term
}

// Equal compares two result documents. Solutions are compared as a multiset,
// so their order does not matter. Blank node labels may differ between the
// documents, but there must be one consistent renaming of the labels of r
// onto those of other.
func (r *SPARQLResults) Equal(other *SPARQLResults) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.Boolean != nil || other.Boolean != nil {
		return r.Boolean != nil && other.Boolean != nil && *r.Boolean == *other.Boolean
	}
	if len(r.Bindings) != len(other.Bindings) {
		return false
	}

	counts := make(map[string]int, len(r.Bindings))
	for _, b := range r.Bindings {
		counts[bindingKey(b)]++
	}
	for _, b := range other.Bindings {
		key := bindingKey(b)
		if counts[key] == 0 {
			return false
		}
		counts[key]--
	}

	if !hasBlankNodes(r.Bindings) {
		return true
	}
	return matchBlankNodes(r.Bindings, other.Bindings, 0, make([]bool, len(other.Bindings)), map[string]string{}, map[string]string{})
}

func hasBlankNodes(bindings []map[string]Term) bool {
	for _, b := range bindings {
		for _, term := range b {
			if term.Type == "bnode" {
				return true
			}
		}
	}
	return false
}

// matchBlankNodes pairs solution i of a, and every solution after it, with
// an unused solution of b, keeping the label mapping fwd (a to b) and its
// inverse back a bijection. It backtracks over pairings with equal keys.
func matchBlankNodes(a, b []map[string]Term, i int, used []bool, fwd, back map[string]string) bool {
	if i == len(a) {
		return true
	}
	key := bindingKey(a[i])
	for j, candidate := range b {
		if used[j] || bindingKey(candidate) != key {
			continue
		}
		added, ok := bindBlankNodes(a[i], candidate, fwd, back)
		if ok {
			used[j] = true
			if matchBlankNodes(a, b, i+1, used, fwd, back) {
				return true
			}
			used[j] = false
		}
		for _, label := range added {
			delete(back, fwd[label])
			delete(fwd, label)
		}
	}
	return false
}

// bindBlankNodes extends fwd and back with the labels of x and y. It returns
// the labels of x it added so the caller can undo them.
func bindBlankNodes(x, y map[string]Term, fwd, back map[string]string) ([]string, bool) {
	var added []string
	for name, term := range x {
		if term.Type != "bnode" {
			continue
		}
		from, to := term.Value, y[name].Value
		if mapped, ok := fwd[from]; ok {
			if mapped != to {
				return added, false
			}
			continue
		}
		if _, ok := back[to]; ok {
			return added, false
		}
		fwd[from], back[to] = to, from
		added = append(added, from)
	}
	return added, true
}

func (r *SPARQLResults) String() string {
	if r == nil {
		return "<nil>"
	}
	if r.Boolean != nil {
		return fmt.Sprintf("%t", *r.Boolean)
	}
	rows := make([]string, 0, len(r.Bindings))
	for _, b := range r.Bindings {
		rows = append(rows, bindingKey(b))
	}
	return strings.Join(rows, "\n")
}

func bindingKey(b map[string]Term) string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, "?"+name+"="+b[name].String())
	}
	return strings.Join(parts, " ")
}

// ParseSPARQLJSON reads an application/sparql-results+json document.
func ParseSPARQLJSON(body []byte) (*SPARQLResults, error) {
	doc, err := ParseJSON(body)
	if err != nil {
		return nil, err
	}

	res := &SPARQLResults{}
	if head, ok := doc["head"].(map[string]interface{}); ok {
		for _, v := range asSlice(head["vars"]) {
			if name, ok := v.(string); ok {
				res.Variables = append(res.Variables, name)
			}
		}
	}

	if boolean, ok := doc["boolean"].(bool); ok {
		res.Boolean = &boolean
		return res, nil
	}

	results, ok := doc["results"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: missing results or boolean", ErrInvalidResults)
	}
	for _, raw := range asSlice(results["bindings"]) {
		row, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: binding is not an object", ErrInvalidResults)
		}
		binding := make(map[string]Term, len(row))
		for name, rawTerm := range row {
			term, ok := rawTerm.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: term for ?%s is not an object", ErrInvalidResults, name)
			}
			binding[name] = Term{
				Type:     normalizeTermType(stringValue(term["type"])),
				Value:    stringValue(term["value"]),
				Datatype: stringValue(term["datatype"]),
				Lang:     stringValue(term["xml:lang"]),
			}
		}
		res.Bindings = append(res.Bindings, binding)
	}
	return res, nil
}

// ParseSPARQLXML reads an application/sparql-results+xml document.
func ParseSPARQLXML(body []byte) (*SPARQLResults, error) {
	doc, err := ParseXML(body)
	if err != nil {
		return nil, err
	}
	root, ok := doc["sparql"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: missing sparql root element", ErrInvalidResults)
	}

	res := &SPARQLResults{}
	if head, ok := root["head"].(map[string]interface{}); ok {
		for _, v := range asSlice(head["variable"]) {
			if variable, ok := v.(map[string]interface{}); ok {
				res.Variables = append(res.Variables, stringValue(variable["-name"]))
			}
		}
	}

	if raw, ok := root["boolean"]; ok {
		boolean := strings.TrimSpace(textOf(raw)) == "true"
		res.Boolean = &boolean
		return res, nil
	}

	results, ok := root["results"]
	if !ok {
		return nil, fmt.Errorf("%w: missing results or boolean", ErrInvalidResults)
	}
	resultsMap, _ := results.(map[string]interface{}) // <results/> decodes to ""
	for _, raw := range asSlice(resultsMap["result"]) {
		row, _ := raw.(map[string]interface{})
		binding := make(map[string]Term)
		for _, rawBinding := range asSlice(row["binding"]) {
			b, ok := rawBinding.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: binding without name", ErrInvalidResults)
			}
			term, err := xmlTerm(b)
			if err != nil {
				return nil, err
			}
			binding[stringValue(b["-name"])] = term
		}
		res.Bindings = append(res.Bindings, binding)
	}
	return res, nil
}

func xmlTerm(b map[string]interface{}) (Term, error) {
	if v, ok := b["uri"]; ok {
		return Term{Type: "uri", Value: textOf(v)}, nil
	}
	if v, ok := b["bnode"]; ok {
		return Term{Type: "bnode", Value: textOf(v)}, nil
	}
	if v, ok := b["literal"]; ok {
		term := Term{Type: "literal", Value: textOf(v)}
		if attrs, ok := v.(map[string]interface{}); ok {
			term.Datatype = stringValue(attrs["-datatype"])
			for key, attr := range attrs {
				if key == "-lang" || strings.HasSuffix(key, ":lang") {
					term.Lang = stringValue(attr)
				}
			}
		}
		return term, nil
	}
	return Term{}, fmt.Errorf("%w: binding %q has no term", ErrInvalidResults, stringValue(b["-name"]))
}

func normalizeTermType(t string) string {
	if t == "typed-literal" {
		return "literal"
	}
	return t
}

func asSlice(v interface{}) []interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case []interface{}:
		return val
	default:
		return []interface{}{val}
	}
}

func textOf(v interface{}) string {
	if m, ok := v.(map[string]interface{}); ok {
		return stringValue(m["#text"])
	}
	return stringValue(v)
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}
