package generate

import (
	"fmt"
	"strings"
)

// TemplateError reports a fact template referencing a fact a node does
// not have. It aborts the whole run: group templates are expected to
// only name facts every node reports.
type TemplateError struct {
	Template string
	Fact     string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %q references missing fact %q", e.Template, e.Fact)
}

// RenderTemplate substitutes {factname} references in tpl with the
// node's fact values. Doubled braces escape a literal brace.
func RenderTemplate(tpl string, facts map[string]any) (string, error) {
	var b strings.Builder
	for i := 0; i < len(tpl); i++ {
		c := tpl[i]
		switch c {
		case '{':
			if i+1 < len(tpl) && tpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tpl[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("template %q: unclosed brace", tpl)
			}
			name := tpl[i+1 : i+end]
			value, ok := facts[name]
			if !ok {
				return "", &TemplateError{Template: tpl, Fact: name}
			}
			fmt.Fprintf(&b, "%v", value)
			i += end
		case '}':
			if i+1 < len(tpl) && tpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("template %q: unexpected closing brace", tpl)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}
