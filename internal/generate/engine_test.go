package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opsgen/naginator/internal/puppetdb"
)

// fakeSource serves a fixed inventory, filtering resources by the
// equality terms in the query string.
type fakeSource struct {
	nodes     []puppetdb.Node
	facts     map[string]map[string]any
	resources []puppetdb.Resource
}

func (f *fakeSource) Nodes(_ context.Context, _ string) ([]puppetdb.Node, error) {
	return f.nodes, nil
}

func (f *fakeSource) Facts(_ context.Context, certname string) (map[string]any, error) {
	return f.facts[certname], nil
}

func (f *fakeSource) Resources(_ context.Context, query string) ([]puppetdb.Resource, error) {
	terms := parseTerms(query)
	var out []puppetdb.Resource
	for _, r := range f.resources {
		if typ, ok := terms["type"]; ok && r.Type != typ {
			continue
		}
		if title, ok := terms["title"]; ok && r.Name != title {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// parseTerms flattens a PuppetDB AST query into its equality terms.
func parseTerms(query string) map[string]string {
	terms := make(map[string]string)
	if query == "" {
		return terms
	}
	var ast []any
	if err := json.Unmarshal([]byte(query), &ast); err != nil || len(ast) == 0 {
		return terms
	}
	add := func(node []any) {
		if len(node) == 3 && node[0] == "=" {
			terms[node[1].(string)] = node[2].(string)
		}
	}
	if ast[0] == "and" {
		for _, sub := range ast[1:] {
			if node, ok := sub.([]any); ok {
				add(node)
			}
		}
	} else {
		add(ast)
	}
	return terms
}

func hostResource(name string) puppetdb.Resource {
	return puppetdb.Resource{
		Certname: name,
		Type:     "Nagios_host",
		Name:     name,
		Parameters: map[string]any{
			"address": "10.0.0.1",
		},
	}
}

func serviceResource(name, host, description string) puppetdb.Resource {
	params := map[string]any{"check_command": "check_ping"}
	if host != "" {
		params["host_name"] = host
	}
	if description != "" {
		params["service_description"] = description
	}
	return puppetdb.Resource{
		Certname:   host,
		Type:       "Nagios_service",
		Name:       name,
		Parameters: params,
	}
}

func newTestEngine(src Source, opts Options) (*Engine, *bytes.Buffer) {
	var logBuf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(src, opts, log, nil), &logBuf
}

func generateAll(t *testing.T, e *Engine) string {
	t.Helper()
	snap, err := e.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	dir := t.TempDir()
	if err := e.Generate(context.Background(), snap, dir); err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	return dir
}

func readFile(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(data)
}

func TestGenerateHostScopedService(t *testing.T) {
	src := &fakeSource{
		nodes: []puppetdb.Node{{Name: "web1"}},
		facts: map[string]map[string]any{"web1": {"operatingsystem": "Debian"}},
		resources: []puppetdb.Resource{
			hostResource("web1"),
			serviceResource("web1-ping", "web1", "ping"),
		},
	}
	e, _ := newTestEngine(src, Options{})
	dir := generateAll(t, e)

	hostFile := readFile(t, dir, "host_web1.cfg")
	hostIdx := strings.Index(hostFile, "define host {")
	svcIdx := strings.Index(hostFile, "define service {")
	if hostIdx != 0 {
		t.Errorf("host file must start with the host stanza:\n%s", hostFile)
	}
	if svcIdx < 0 || svcIdx < hostIdx {
		t.Errorf("service stanza must follow the host stanza:\n%s", hostFile)
	}
	if !strings.Contains(hostFile, "host_name                      web1") {
		t.Errorf("host file missing host_name line:\n%s", hostFile)
	}
	if strings.Contains(hostFile, "\n  name ") {
		t.Errorf("attached service must not carry a name line:\n%s", hostFile)
	}

	if auto := readFile(t, dir, "auto_service.cfg"); strings.Contains(auto, "ping") {
		t.Errorf("host-scoped service leaked into auto_service.cfg:\n%s", auto)
	}
}

func TestGenerateUnknownHostDropped(t *testing.T) {
	src := &fakeSource{
		nodes: []puppetdb.Node{{Name: "web1"}},
		facts: map[string]map[string]any{"web1": {}},
		resources: []puppetdb.Resource{
			hostResource("web1"),
			serviceResource("ghost-ping", "ghost", "ping"),
		},
	}
	e, logBuf := newTestEngine(src, Options{})
	dir := generateAll(t, e)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		content := readFile(t, dir, entry.Name())
		if strings.Contains(content, "ghost") {
			t.Errorf("%s contains the dropped ghost service:\n%s", entry.Name(), content)
		}
	}
	if !strings.Contains(logBuf.String(), "unknown host") {
		t.Error("expected a diagnostic for the unknown host")
	}
}

func TestGenerateDeduplicates(t *testing.T) {
	first := puppetdb.Resource{
		Certname: "a", Type: "Nagios_command", Name: "check_x",
		Parameters: map[string]any{"command_line": "/bin/first"},
	}
	second := puppetdb.Resource{
		Certname: "b", Type: "Nagios_command", Name: "check_x",
		Parameters: map[string]any{"command_line": "/bin/second"},
	}
	src := &fakeSource{resources: []puppetdb.Resource{first, second}}
	e, logBuf := newTestEngine(src, Options{})
	dir := generateAll(t, e)

	out := readFile(t, dir, "auto_command.cfg")
	if strings.Count(out, "define command {") != 1 {
		t.Errorf("duplicate resource emitted twice:\n%s", out)
	}
	if !strings.Contains(out, "/bin/first") {
		t.Errorf("first occurrence should win:\n%s", out)
	}
	if !strings.Contains(logBuf.String(), "duplicate") {
		t.Error("expected a duplicate diagnostic")
	}
}

func TestGenerateDeterministic(t *testing.T) {
	resources := []puppetdb.Resource{
		hostResource("web1"),
		hostResource("web2"),
		serviceResource("web1-ping", "web1", "ping"),
		serviceResource("web1-ssh", "web1", "ssh"),
		serviceResource("web2-ping", "web2", "ping"),
		{Type: "Nagios_command", Name: "check_ping", Parameters: map[string]any{"command_line": "/bin/ping"}},
	}
	nodes := []puppetdb.Node{{Name: "web1"}, {Name: "web2"}}
	facts := map[string]map[string]any{"web1": {}, "web2": {}}

	reversed := make([]puppetdb.Resource, len(resources))
	for i, r := range resources {
		reversed[len(resources)-1-i] = r
	}

	e1, _ := newTestEngine(&fakeSource{nodes: nodes, facts: facts, resources: resources}, Options{})
	e2, _ := newTestEngine(&fakeSource{nodes: nodes, facts: facts, resources: reversed}, Options{})
	dir1 := generateAll(t, e1)
	dir2 := generateAll(t, e2)

	entries1, err := os.ReadDir(dir1)
	if err != nil {
		t.Fatal(err)
	}
	entries2, err := os.ReadDir(dir2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries1) != len(entries2) {
		t.Fatalf("tree sizes differ: %d vs %d", len(entries1), len(entries2))
	}
	for _, entry := range entries1 {
		a := readFile(t, dir1, entry.Name())
		b := readFile(t, dir2, entry.Name())
		if a != b {
			t.Errorf("%s differs between runs:\n--- run 1:\n%s--- run 2:\n%s", entry.Name(), a, b)
		}
	}
}

func TestGenerateExcludesTypes(t *testing.T) {
	src := &fakeSource{resources: []puppetdb.Resource{
		{Type: "Nagios_timeperiod", Name: "always", Parameters: map[string]any{}},
	}}
	e, _ := newTestEngine(src, Options{ExcludeTypes: []string{"timeperiod"}})
	dir := generateAll(t, e)

	if _, err := os.Stat(filepath.Join(dir, "auto_timeperiod.cfg")); !os.IsNotExist(err) {
		t.Error("excluded type must not produce a file")
	}
}

func TestGenerateHostTemplates(t *testing.T) {
	template := puppetdb.Resource{
		Type: "Nagios_host", Name: "generic-host",
		Parameters: map[string]any{"max_check_attempts": "3"},
	}
	src := &fakeSource{
		nodes:     []puppetdb.Node{{Name: "web1"}},
		facts:     map[string]map[string]any{"web1": {}},
		resources: []puppetdb.Resource{hostResource("web1"), template},
	}
	e, _ := newTestEngine(src, Options{})
	dir := generateAll(t, e)

	autoHost := readFile(t, dir, "auto_host.cfg")
	if !strings.Contains(autoHost, "name                           generic-host") {
		t.Errorf("template host missing from auto_host.cfg:\n%s", autoHost)
	}
	if _, err := os.Stat(filepath.Join(dir, "host_generic-host.cfg")); !os.IsNotExist(err) {
		t.Error("template host must not get its own file")
	}
	if _, err := os.Stat(filepath.Join(dir, "host_web1.cfg")); err != nil {
		t.Errorf("real host file missing: %v", err)
	}
}

func TestGenerateTemplateScopedServiceDropped(t *testing.T) {
	template := puppetdb.Resource{
		Type: "Nagios_host", Name: "generic-host",
		Parameters: map[string]any{"max_check_attempts": "3"},
	}
	src := &fakeSource{
		nodes: []puppetdb.Node{{Name: "web1"}},
		facts: map[string]map[string]any{"web1": {}},
		resources: []puppetdb.Resource{
			hostResource("web1"),
			template,
			serviceResource("web1-ping", "web1", "ping"),
			serviceResource("template-ping", "generic-host", "ping"),
		},
	}
	e, logBuf := newTestEngine(src, Options{})
	dir := generateAll(t, e)

	// Templates never get a host file, so nothing may attach to them.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if entry.Name() == "auto_host.cfg" {
			continue
		}
		content := readFile(t, dir, entry.Name())
		if strings.Contains(content, "generic-host") {
			t.Errorf("%s references the template host:\n%s", entry.Name(), content)
		}
	}
	if !strings.Contains(logBuf.String(), "unknown host") {
		t.Error("expected a diagnostic for the template-scoped service")
	}

	groups := readFile(t, dir, "auto_servicegroup_ping.cfg")
	if !strings.Contains(groups, "members web1,ping\n") {
		t.Errorf("servicegroup membership = %s", groups)
	}
	if !strings.Contains(readFile(t, dir, "auto_host.cfg"), "generic-host") {
		t.Error("template stanza missing from auto_host.cfg")
	}
}

// countingSource records how many resource queries target each
// puppet type.
type countingSource struct {
	fakeSource
	fetches map[string]int
}

func (c *countingSource) Resources(ctx context.Context, query string) ([]puppetdb.Resource, error) {
	if c.fetches == nil {
		c.fetches = make(map[string]int)
	}
	c.fetches[parseTerms(query)["type"]]++
	return c.fakeSource.Resources(ctx, query)
}

func TestGenerateFetchesServicesOnce(t *testing.T) {
	src := &countingSource{fakeSource: fakeSource{
		nodes: []puppetdb.Node{{Name: "web1"}},
		facts: map[string]map[string]any{"web1": {}},
		resources: []puppetdb.Resource{
			hostResource("web1"),
			serviceResource("web1-ping", "web1", "ping"),
		},
	}}
	e, _ := newTestEngine(src, Options{})
	generateAll(t, e)

	if got := src.fetches["Nagios_service"]; got != 1 {
		t.Errorf("service resources fetched %d times, want 1", got)
	}
}

func TestGenerateAttachmentsSorted(t *testing.T) {
	src := &fakeSource{
		nodes: []puppetdb.Node{{Name: "web1"}},
		facts: map[string]map[string]any{"web1": {}},
		resources: []puppetdb.Resource{
			hostResource("web1"),
			serviceResource("z-service", "web1", "zz"),
			serviceResource("a-service", "web1", "aa"),
		},
	}
	e, _ := newTestEngine(src, Options{})
	dir := generateAll(t, e)

	hostFile := readFile(t, dir, "host_web1.cfg")
	aa := strings.Index(hostFile, "aa")
	zz := strings.Index(hostFile, "zz")
	if aa < 0 || zz < 0 || aa > zz {
		t.Errorf("attachments not in lexicographic order:\n%s", hostFile)
	}
}
