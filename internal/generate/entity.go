// Package generate compiles PuppetDB-exported nagios resources into a
// directory of nagios object configuration files.
package generate

// NamePolicy selects how the name line of a stanza is emitted.
type NamePolicy int

const (
	// NameDefault emits "<type>_name  <title>".
	NameDefault NamePolicy = iota

	// NameHost emits "host_name" when the resource is a real host
	// (its title is a known node, or it inherits via "use"), and
	// "name" for template-only definitions.
	NameHost

	// NameService suppresses the name line when the resource carries
	// a host_name parameter; the stanza is then keyed by host and
	// service_description.
	NameService
)

// EntityType describes one supported nagios object type: its define
// tag, its directive whitelist, and its name-line policy.
type EntityType struct {
	Tag       string
	Whitelist map[string]struct{}
	Policy    NamePolicy
}

// Types is the closed set of supported entity types. HostType is kept
// out of this slice: the host generator runs separately, after every
// other type has routed its host-scoped stanzas.
var Types = []EntityType{
	{Tag: "hostgroup", Whitelist: hostgroupDirectives},
	{Tag: "hostescalation"},
	{Tag: "hostdependency"},
	{Tag: "hostextinfo"},
	{Tag: "service", Whitelist: serviceDirectives, Policy: NameService},
	{Tag: "servicegroup", Whitelist: servicegroupDirectives},
	{Tag: "serviceescalation"},
	{Tag: "servicedependency"},
	{Tag: "serviceextinfo"},
	{Tag: "contact", Whitelist: contactDirectives},
	{Tag: "contactgroup", Whitelist: contactgroupDirectives},
	{Tag: "timeperiod"},
	{Tag: "command", Whitelist: commandDirectives},
}

// HostType is the host entity type, generated last.
var HostType = EntityType{Tag: "host", Whitelist: hostDirectives, Policy: NameHost}

// puppetType returns the capitalized resource type tag PuppetDB stores
// for this entity type.
func (et EntityType) puppetType() string {
	return "Nagios_" + et.Tag
}

// ExcludableTag reports whether tag names an entity type that may be
// listed in exclude_types. The host type is not excludable: the host
// generator must always run to drain the attachment buffer.
func ExcludableTag(tag string) bool {
	for _, et := range Types {
		if et.Tag == tag {
			return true
		}
	}
	return false
}
