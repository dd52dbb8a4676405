package generate

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opsgen/naginator/internal/puppetdb"
	"github.com/opsgen/naginator/internal/telemetry"
)

// Source is the read-only inventory query capability the engine needs.
// *puppetdb.Client satisfies it.
type Source interface {
	Nodes(ctx context.Context, query string) ([]puppetdb.Node, error)
	Facts(ctx context.Context, certname string) (map[string]any, error)
	Resources(ctx context.Context, query string) ([]puppetdb.Resource, error)
}

// Trait is one (resource type, resource title) ownership filter for a
// group definition.
type Trait struct {
	Type  string
	Title string
}

// GroupDef defines one derived host group.
type GroupDef struct {
	Name          string
	NameTemplate  string
	AliasTemplate string
	When          string
	Traits        []Trait
}

// Options configures one compilation engine.
type Options struct {
	// Environment constrains node queries to one puppet environment
	// (catalog and facts). Empty means all environments.
	Environment string

	// Query adds equality constraints to every resource query.
	Query map[string]string

	// ExcludeTypes lists entity-type tags to skip.
	ExcludeTypes []string

	// HostGroups are the derived group definitions.
	HostGroups []GroupDef
}

// Engine compiles one inventory snapshot into a config directory.
type Engine struct {
	src     Source
	opts    Options
	log     *slog.Logger
	metrics *telemetry.Metrics

	excluded map[string]struct{}
}

// New creates an Engine. metrics may be nil.
func New(src Source, opts Options, log *slog.Logger, metrics *telemetry.Metrics) *Engine {
	excluded := make(map[string]struct{}, len(opts.ExcludeTypes))
	for _, t := range opts.ExcludeTypes {
		excluded[t] = struct{}{}
	}
	return &Engine{
		src:      src,
		opts:     opts,
		log:      log,
		metrics:  metrics,
		excluded: excluded,
	}
}

// Snapshot fetches nodes, facts and the declared host set. It runs
// once per compilation; generators never query nodes or facts again.
func (e *Engine) Snapshot(ctx context.Context) (*Snapshot, error) {
	nodes, err := e.src.Nodes(ctx, e.nodeQuery())
	if err != nil {
		return nil, fmt.Errorf("fetch nodes: %w", err)
	}
	facts := make(map[string]map[string]any, len(nodes))
	for _, n := range nodes {
		nf, err := e.src.Facts(ctx, n.Name)
		if err != nil {
			return nil, fmt.Errorf("fetch facts for %s: %w", n.Name, err)
		}
		facts[n.Name] = nf
	}

	hostResources, err := e.src.Resources(ctx, e.resourceQuery(HostType.puppetType()))
	if err != nil {
		return nil, fmt.Errorf("fetch host resources: %w", err)
	}
	isNode := func(name string) bool {
		_, ok := facts[name]
		return ok
	}
	// Templates never get a host_<name>.cfg file, so they must not be
	// attachment targets either; resources scoped to a template name
	// take the unknown-host skip path.
	hostNames := make([]string, 0, len(hostResources))
	templates := 0
	for _, r := range hostResources {
		if !isRealHost(r, isNode) {
			templates++
			continue
		}
		hostNames = append(hostNames, r.Name)
	}

	e.log.Info("inventory snapshot complete",
		slog.Int("nodes", len(nodes)),
		slog.Int("hosts", len(hostNames)),
		slog.Int("host_templates", templates))
	return newSnapshot(nodes, facts, hostNames), nil
}

// Generate compiles the full tree into outDir. Non-host generators run
// first and populate the attachment buffer; the host generator drains
// it last; derived groups close the run. Service resources are fetched
// exactly once so the derived servicegroups always agree with the
// emitted service stanzas.
func (e *Engine) Generate(ctx context.Context, snap *Snapshot, outDir string) error {
	var services []puppetdb.Resource
	for _, et := range Types {
		if _, skip := e.excluded[et.Tag]; skip {
			e.log.Debug("entity type excluded", slog.String("type", et.Tag))
			continue
		}
		resources, err := e.fetchUnique(ctx, et)
		if err != nil {
			return err
		}
		if err := e.generateType(snap, et, resources, outDir); err != nil {
			return err
		}
		if et.Tag == "service" {
			services = resources
		}
	}
	if err := e.generateServiceGroups(snap, services, outDir); err != nil {
		return err
	}
	if err := e.generateHosts(ctx, snap, outDir); err != nil {
		return err
	}
	return e.generateCustomGroups(ctx, snap, outDir)
}

// generateType emits auto_<type>.cfg for one entity type, routing
// host-scoped resources into the attachment buffer instead.
func (e *Engine) generateType(snap *Snapshot, et EntityType, resources []puppetdb.Resource, outDir string) error {
	var file bytes.Buffer
	for _, r := range resources {
		hostname, scoped := r.Parameter("host_name")
		if scoped {
			if !snap.KnownHost(hostname) {
				e.log.Info("skipping resource for unknown host",
					slog.String("type", et.Tag),
					slog.String("name", r.Name),
					slog.String("host", hostname))
				e.countSkip("unknown_host")
				continue
			}
			var b strings.Builder
			writeStanza(&b, et, r, snap.IsNode)
			snap.attach(hostname, b.String())
			e.countStanza(et.Tag)
			continue
		}
		var b strings.Builder
		writeStanza(&b, et, r, snap.IsNode)
		file.WriteString(b.String())
		e.countStanza(et.Tag)
	}

	return writeConfigFile(outDir, "auto_"+et.Tag+".cfg", file.Bytes())
}

// generateHosts runs last. Real hosts get their own host_<name>.cfg
// with the host stanza first and the buffered attachments after it;
// template-only definitions collect in auto_host.cfg.
func (e *Engine) generateHosts(ctx context.Context, snap *Snapshot, outDir string) error {
	resources, err := e.fetchUnique(ctx, HostType)
	if err != nil {
		return err
	}

	var templates bytes.Buffer
	for _, r := range resources {
		var b strings.Builder
		writeStanza(&b, HostType, r, snap.IsNode)
		e.countStanza(HostType.Tag)

		if !isRealHost(r, snap.IsNode) {
			templates.WriteString(b.String())
			continue
		}
		for _, attached := range snap.drain(r.Name) {
			b.WriteString(attached)
		}
		name := "host_" + r.Name + ".cfg"
		if err := writeConfigFile(outDir, name, []byte(b.String())); err != nil {
			return err
		}
	}

	return writeConfigFile(outDir, "auto_host.cfg", templates.Bytes())
}

// fetchUnique queries one entity type's resources and deduplicates by
// name, first occurrence winning. The same declared resource can come
// back once per catalog that exports it.
func (e *Engine) fetchUnique(ctx context.Context, et EntityType) ([]puppetdb.Resource, error) {
	resources, err := e.src.Resources(ctx, e.resourceQuery(et.puppetType()))
	if err != nil {
		return nil, fmt.Errorf("fetch %s resources: %w", et.Tag, err)
	}

	seen := make(map[string]struct{}, len(resources))
	unique := resources[:0]
	for _, r := range resources {
		if _, dup := seen[r.Name]; dup {
			e.log.Info("duplicate resource",
				slog.String("type", et.Tag),
				slog.String("name", r.Name))
			e.countSkip("duplicate")
			continue
		}
		seen[r.Name] = struct{}{}
		unique = append(unique, r)
	}

	// Fixed emission order keeps generated trees byte-identical for
	// identical snapshots regardless of fetch order.
	sort.Slice(unique, func(i, j int) bool { return unique[i].Name < unique[j].Name })
	return unique, nil
}

// resourceQuery composes the always-present type constraint with the
// globally configured constraints, sorted for a stable query string.
func (e *Engine) resourceQuery(puppetType string) string {
	keys := make([]string, 0, len(e.opts.Query))
	for k := range e.opts.Query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	terms := make([]puppetdb.Term, 0, len(keys)+1)
	for _, k := range keys {
		terms = append(terms, puppetdb.Eq(k, e.opts.Query[k]))
	}
	terms = append(terms, puppetdb.Eq("type", puppetType))
	return puppetdb.BuildQuery(terms...)
}

func (e *Engine) nodeQuery() string {
	if e.opts.Environment == "" {
		return ""
	}
	return puppetdb.BuildQuery(
		puppetdb.Eq("catalog_environment", e.opts.Environment),
		puppetdb.Eq("facts_environment", e.opts.Environment),
	)
}

func (e *Engine) countStanza(tag string) {
	if e.metrics != nil {
		e.metrics.StanzasCompiled.WithLabelValues(tag).Inc()
	}
}

func (e *Engine) countSkip(reason string) {
	if e.metrics != nil {
		e.metrics.ResourcesSkipped.WithLabelValues(reason).Inc()
	}
}

// writeConfigFile writes one output file completely before returning,
// so a crash mid-run never leaves a half-written stanza behind.
func writeConfigFile(dir, name string, data []byte) error {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
