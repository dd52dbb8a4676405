package generate

import (
	"sort"

	"github.com/opsgen/naginator/internal/puppetdb"
)

// Snapshot is the immutable inventory view one run compiles from:
// the node set, per-node facts, and the names of every real declared
// nagios host resource (template-only definitions are excluded; they
// never produce a host file, so nothing may attach to them). It also
// owns the pending attachment buffer that collects host-scoped stanzas
// until the host generator drains it.
type Snapshot struct {
	Nodes []puppetdb.Node
	Facts map[string]map[string]any

	hosts   map[string]struct{}
	pending map[string][]string
}

func newSnapshot(nodes []puppetdb.Node, facts map[string]map[string]any, hostNames []string) *Snapshot {
	hosts := make(map[string]struct{}, len(hostNames))
	for _, h := range hostNames {
		hosts[h] = struct{}{}
	}
	return &Snapshot{
		Nodes:   nodes,
		Facts:   facts,
		hosts:   hosts,
		pending: make(map[string][]string),
	}
}

// KnownHost reports whether a real nagios host resource with this name
// exists. Stanzas referencing unknown hosts or host templates are
// dropped rather than emitted.
func (s *Snapshot) KnownHost(name string) bool {
	_, ok := s.hosts[name]
	return ok
}

// IsNode reports whether a name is a puppet node in this snapshot.
func (s *Snapshot) IsNode(name string) bool {
	_, ok := s.Facts[name]
	return ok
}

// attach buffers a serialized stanza for inclusion in the host's file.
func (s *Snapshot) attach(host, stanza string) {
	s.pending[host] = append(s.pending[host], stanza)
}

// drain returns the host's buffered stanzas in a stable lexicographic
// order and clears the buffer for that host. Attachment order varies
// between inventory fetches; sorting keeps host files byte-identical
// across runs.
func (s *Snapshot) drain(host string) []string {
	stanzas := s.pending[host]
	delete(s.pending, host)
	sort.Strings(stanzas)
	return stanzas
}
