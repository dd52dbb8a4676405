package generate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opsgen/naginator/internal/puppetdb"
)

// writeStanza renders one resource as a nagios define block. isNode
// reports whether a name is a known puppet node; the host name policy
// needs it to distinguish real hosts from template definitions.
func writeStanza(b *strings.Builder, et EntityType, res puppetdb.Resource, isNode func(string) bool) {
	fmt.Fprintf(b, "define %s {\n", et.Tag)
	writeNameLine(b, et, res, isNode)
	writeParameters(b, et, res)
	b.WriteString("}\n")
}

func writeNameLine(b *strings.Builder, et EntityType, res puppetdb.Resource, isNode func(string) bool) {
	switch et.Policy {
	case NameHost:
		field := "name"
		if isRealHost(res, isNode) {
			field = "host_name"
		}
		writeField(b, field, res.Name)
	case NameService:
		if _, ok := res.Parameters["host_name"]; !ok {
			writeField(b, "name", res.Name)
		}
	default:
		writeField(b, et.Tag+"_name", res.Name)
	}
}

// isRealHost reports whether a host resource describes an actual
// monitored host rather than a reusable template: either its title is
// a node PuppetDB knows, or it explicitly inherits with "use".
func isRealHost(res puppetdb.Resource, isNode func(string) bool) bool {
	if isNode != nil && isNode(res.Name) {
		return true
	}
	_, ok := res.Parameters["use"]
	return ok
}

func writeParameters(b *strings.Builder, et EntityType, res puppetdb.Resource) {
	names := make([]string, 0, len(res.Parameters))
	for name := range res.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := res.Parameters[name]
		if emptyValue(value) {
			continue
		}
		if _, drop := suppressedParams[name]; drop {
			continue
		}
		if !et.Permitted(name) {
			continue
		}
		writeField(b, name, formatValue(value))
	}
}

func writeField(b *strings.Builder, name, value string) {
	fmt.Fprintf(b, "  %-30s %s\n", name, value)
}

// emptyValue mirrors the falsiness test the stanza format relies on:
// absent, empty, zero and false parameters are never emitted.
func emptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case []any:
		return len(t) == 0
	}
	return false
}

// formatValue serializes a parameter value; lists become comma-joined
// scalars.
func formatValue(v any) string {
	if list, ok := v.([]any); ok {
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = fmt.Sprintf("%v", item)
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprintf("%v", v)
}
