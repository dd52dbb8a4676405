package run

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opsgen/naginator/internal/config"
	"github.com/opsgen/naginator/internal/deploy"
	"github.com/opsgen/naginator/internal/puppetdb"
)

type fixedSource struct {
	nodes     []puppetdb.Node
	facts     map[string]map[string]any
	resources []puppetdb.Resource
}

func (f *fixedSource) Nodes(_ context.Context, _ string) ([]puppetdb.Node, error) {
	return f.nodes, nil
}

func (f *fixedSource) Facts(_ context.Context, certname string) (map[string]any, error) {
	return f.facts[certname], nil
}

func (f *fixedSource) Resources(_ context.Context, query string) ([]puppetdb.Resource, error) {
	var typeTerm string
	var ast []any
	if err := json.Unmarshal([]byte(query), &ast); err == nil {
		var scan func(node []any)
		scan = func(node []any) {
			if len(node) == 3 && node[0] == "=" && node[1] == "type" {
				typeTerm = node[2].(string)
				return
			}
			for _, sub := range node {
				if child, ok := sub.([]any); ok {
					scan(child)
				}
			}
		}
		scan(ast)
	}
	var out []puppetdb.Resource
	for _, r := range f.resources {
		if typeTerm == "" || r.Type == typeTerm {
			out = append(out, r)
		}
	}
	return out, nil
}

type okVerifier struct{ staged, live int }

func (v *okVerifier) VerifyStaged(context.Context, []string) error { v.staged++; return nil }
func (v *okVerifier) VerifyLive(context.Context) error             { v.live++; return nil }

type okRestarter struct{ calls int }

func (r *okRestarter) Restart(context.Context) error { r.calls++; return nil }

func testRunner(t *testing.T, src *fixedSource, verifier *okVerifier, restarter *okRestarter) *Runner {
	t.Helper()
	cfg := config.Default()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, src, verifier, restarter, log, nil)
}

func inventory() *fixedSource {
	return &fixedSource{
		nodes: []puppetdb.Node{{Name: "web1"}},
		facts: map[string]map[string]any{"web1": {"operatingsystem": "Debian"}},
		resources: []puppetdb.Resource{
			{
				Certname: "web1", Type: "Nagios_host", Name: "web1",
				Parameters: map[string]any{"address": "10.0.0.1"},
			},
			{
				Certname: "web1", Type: "Nagios_service", Name: "web1-ping",
				Parameters: map[string]any{
					"host_name":           "web1",
					"service_description": "ping",
					"check_command":       "check_ping",
				},
			},
		},
	}
}

func TestRunnerGenerate(t *testing.T) {
	runner := testRunner(t, inventory(), &okVerifier{}, &okRestarter{})
	dir := t.TempDir()

	if err := runner.Generate(context.Background(), dir); err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "host_web1.cfg"))
	if err != nil {
		t.Fatalf("host file missing: %v", err)
	}
	if !strings.Contains(string(data), "define service {") {
		t.Errorf("host file missing attached service:\n%s", data)
	}
}

func TestRunnerUpdateIsIdempotent(t *testing.T) {
	src := inventory()
	verifier := &okVerifier{}
	restarter := &okRestarter{}
	runner := testRunner(t, src, verifier, restarter)
	live := t.TempDir()

	first, err := runner.Update(context.Background(), live)
	if err != nil {
		t.Fatalf("first Update() error: %v", err)
	}
	if first.State != deploy.StateApplied {
		t.Errorf("first State = %q, want applied", first.State)
	}
	if verifier.staged != 1 || verifier.live != 1 || restarter.calls != 1 {
		t.Errorf("verifier/restarter calls = %d/%d/%d", verifier.staged, verifier.live, restarter.calls)
	}

	second, err := runner.Update(context.Background(), live)
	if err != nil {
		t.Fatalf("second Update() error: %v", err)
	}
	if second.State != deploy.StateUnchanged {
		t.Errorf("second State = %q, want unchanged", second.State)
	}
	// No validator or restart activity on the no-op run.
	if verifier.staged != 1 || verifier.live != 1 || restarter.calls != 1 {
		t.Errorf("no-op run invoked external commands: %d/%d/%d",
			verifier.staged, verifier.live, restarter.calls)
	}
}

func TestRunnerUpdateHonorsRestartSetting(t *testing.T) {
	src := inventory()
	restarter := &okRestarter{}
	runner := testRunner(t, src, &okVerifier{}, restarter)
	runner.cfg.Deploy.Restart = false

	if _, err := runner.Update(context.Background(), t.TempDir()); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if restarter.calls != 0 {
		t.Error("restart invoked despite deploy.restart=false")
	}
}
