package puppetdb

import "encoding/json"

// Term is one equality constraint in a PuppetDB query.
type Term struct {
	Field string
	Value string
}

// Eq builds an equality term.
func Eq(field, value string) Term {
	return Term{Field: field, Value: value}
}

// BuildQuery renders terms as a PuppetDB AST query string. Zero terms
// produce the empty string (an unconstrained query), a single term is
// rendered bare, and multiple terms are joined under an "and".
func BuildQuery(terms ...Term) string {
	if len(terms) == 0 {
		return ""
	}
	render := func(t Term) []any {
		return []any{"=", t.Field, t.Value}
	}
	var ast any
	if len(terms) == 1 {
		ast = render(terms[0])
	} else {
		conj := []any{"and"}
		for _, t := range terms {
			conj = append(conj, render(t))
		}
		ast = conj
	}
	// Only strings and slices go in, so marshalling cannot fail.
	out, _ := json.Marshal(ast)
	return string(out)
}
