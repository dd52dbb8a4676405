// Package puppetdb implements a read-only client for the PuppetDB v4
// query API, covering the three endpoints the generator needs: nodes,
// per-node facts, and resources.
package puppetdb

// Node is one node known to PuppetDB, identified by certname.
type Node struct {
	Name string `json:"certname"`
}

// Fact is a single fact value reported for a node.
type Fact struct {
	Certname string `json:"certname"`
	Name     string `json:"name"`
	Value    any    `json:"value"`
}

// Resource is one typed, named resource from a node's catalog. Type
// carries the capitalized Puppet type tag (e.g. "Nagios_host"), Name
// the resource title.
type Resource struct {
	Certname   string         `json:"certname"`
	Type       string         `json:"type"`
	Name       string         `json:"title"`
	Exported   bool           `json:"exported"`
	Tags       []string       `json:"tags"`
	Parameters map[string]any `json:"parameters"`
}

// Parameter returns the named parameter as a string, with ok reporting
// whether it is present and scalar.
func (r Resource) Parameter(name string) (string, bool) {
	v, ok := r.Parameters[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
