package generate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/opsgen/naginator/internal/puppetdb"
)

// generateServiceGroups derives one servicegroup per distinct
// service_description across host-scoped service resources, with
// (host, description) member pairs. services is the deduplicated slice
// the service generator emitted from, so membership never disagrees
// with the generated stanzas; it is nil when the service type is
// excluded, and then no groups are emitted.
func (e *Engine) generateServiceGroups(snap *Snapshot, services []puppetdb.Resource, outDir string) error {
	groups := make(map[string][]string)
	for _, r := range services {
		hostname, scoped := r.Parameter("host_name")
		if !scoped {
			continue
		}
		if !snap.KnownHost(hostname) {
			e.log.Info("skipping servicegroup member for unknown host",
				slog.String("name", r.Name),
				slog.String("host", hostname))
			continue
		}
		desc, ok := r.Parameter("service_description")
		if !ok || desc == "" {
			e.log.Info("service resource without service_description",
				slog.String("name", r.Name))
			continue
		}
		groups[desc] = append(groups[desc], hostname)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		hosts := groups[name]
		sort.Strings(hosts)
		members := make([]string, len(hosts))
		for i, h := range hosts {
			members[i] = h + "," + name
		}

		var b strings.Builder
		b.WriteString("define servicegroup {\n")
		fmt.Fprintf(&b, " servicegroup_name %s\n", name)
		fmt.Fprintf(&b, " alias %s\n", name)
		fmt.Fprintf(&b, " members %s\n", strings.Join(members, ","))
		b.WriteString("}\n")

		file := "auto_servicegroup_" + name + ".cfg"
		if err := writeConfigFile(outDir, file, []byte(b.String())); err != nil {
			return err
		}
	}
	return nil
}

// generateCustomGroups derives host groups from fact templates and
// trait filters. Distinct fact values fan one definition out into
// multiple groups; a definition rendering zero groups emits nothing.
func (e *Engine) generateCustomGroups(ctx context.Context, snap *Snapshot, outDir string) error {
	for _, def := range e.opts.HostGroups {
		if err := e.generateCustomGroup(ctx, snap, def, outDir); err != nil {
			return fmt.Errorf("hostgroup %s: %w", def.Name, err)
		}
	}
	return nil
}

type groupKey struct {
	name  string
	alias string
}

func (e *Engine) generateCustomGroup(ctx context.Context, snap *Snapshot, def GroupDef, outDir string) error {
	members, err := e.qualifyNodes(ctx, snap, def)
	if err != nil {
		return err
	}

	var when func(map[string]any) (bool, error)
	if def.When != "" {
		program, err := expr.Compile(def.When)
		if err != nil {
			return fmt.Errorf("when expression: %w", err)
		}
		when = func(env map[string]any) (bool, error) {
			out, err := expr.Run(program, env)
			if err != nil {
				return false, fmt.Errorf("when expression: %w", err)
			}
			ok, isBool := out.(bool)
			if !isBool {
				return false, fmt.Errorf("when expression returned %T, want bool", out)
			}
			return ok, nil
		}
	}

	groups := make(map[groupKey][]string)
	for _, node := range members {
		if !snap.KnownHost(node.Name) {
			e.log.Info("skipping node with no nagios host resource",
				slog.String("node", node.Name),
				slog.String("hostgroup", def.Name))
			continue
		}
		facts := snap.Facts[node.Name]
		if when != nil {
			ok, err := when(map[string]any{"name": node.Name, "facts": facts})
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		}
		name, err := RenderTemplate(def.NameTemplate, facts)
		if err != nil {
			return err
		}
		alias, err := RenderTemplate(def.AliasTemplate, facts)
		if err != nil {
			return err
		}
		key := groupKey{name: name, alias: alias}
		groups[key] = append(groups[key], node.Name)
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].name != keys[j].name {
			return keys[i].name < keys[j].name
		}
		return keys[i].alias < keys[j].alias
	})

	for _, key := range keys {
		hosts := groups[key]
		sort.Strings(hosts)

		var b strings.Builder
		b.WriteString("define hostgroup {\n")
		fmt.Fprintf(&b, " hostgroup_name %s\n", key.name)
		fmt.Fprintf(&b, " alias %s\n", key.alias)
		fmt.Fprintf(&b, " members %s\n", strings.Join(hosts, ","))
		b.WriteString("}\n")

		file := "auto_hostgroup_" + key.name + ".cfg"
		if err := writeConfigFile(outDir, file, []byte(b.String())); err != nil {
			return err
		}
	}
	return nil
}

// qualifyNodes applies the definition's trait filters: a node
// qualifies when it owns at least one matching resource for every
// (type, title) pair. When no node satisfies all filters the full node
// set is used instead; that fallback matches long-standing behavior
// and is relied on by definitions without traits.
func (e *Engine) qualifyNodes(ctx context.Context, snap *Snapshot, def GroupDef) ([]puppetdb.Node, error) {
	if len(def.Traits) == 0 {
		return snap.Nodes, nil
	}

	owners := make([]map[string]struct{}, len(def.Traits))
	for i, trait := range def.Traits {
		query := puppetdb.BuildQuery(
			puppetdb.Eq("type", trait.Type),
			puppetdb.Eq("title", trait.Title),
		)
		resources, err := e.src.Resources(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("fetch trait %s[%s]: %w", trait.Type, trait.Title, err)
		}
		owners[i] = make(map[string]struct{}, len(resources))
		for _, r := range resources {
			owners[i][r.Certname] = struct{}{}
		}
	}

	var members []puppetdb.Node
	for _, node := range snap.Nodes {
		qualifies := true
		for _, set := range owners {
			if _, ok := set[node.Name]; !ok {
				qualifies = false
				break
			}
		}
		if qualifies {
			members = append(members, node)
		}
	}
	if len(members) == 0 {
		return snap.Nodes, nil
	}
	return members, nil
}
