package generate

// suppressedParams are puppet resource-management parameters that never
// belong in a nagios stanza, whitelist or not.
var suppressedParams = map[string]struct{}{
	"target":  {},
	"require": {},
	"tag":     {},
	"notify":  {},
	"ensure":  {},
	"mode":    {},
}

func set(names ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Directive whitelists per entity type. A nil whitelist passes every
// parameter through; the escalation, dependency, extinfo and timeperiod
// types are too open-ended to filter.
var (
	hostDirectives = set(
		"host_name", "alias", "display_name", "address",
		"parents", "hostgroups", "check_command",
		"initial_state", "max_check_attempts",
		"check_interval", "retry_interval",
		"active_checks_enabled", "passive_checks_enabled",
		"check_period", "obsess_over_host", "check_freshness",
		"freshness_threshold", "event_handler",
		"event_handler_enabled", "low_flap_threshold",
		"high_flap_threshold", "flap_detection_enabled",
		"flap_detection_options", "process_perf_data",
		"retain_status_information", "retain_nonstatus_information",
		"contacts", "contact_groups", "notification_interval",
		"first_notification_delay", "notification_period",
		"notification_options", "notifications_enabled",
		"stalking_options", "notes", "notes_url",
		"action_url", "icon_image", "icon_image_alt",
		"vrml_image", "statusmap_image", "2d_coords",
		"3d_coords", "use",
	)

	serviceDirectives = set(
		"host_name", "hostgroup_name",
		"service_description", "display_name",
		"servicegroups", "is_volatile", "check_command",
		"initial_state", "max_check_attempts",
		"check_interval", "retry_interval",
		"active_checks_enabled", "passive_checks_enabled",
		"check_period", "obsess_over_service",
		"check_freshness", "freshness_threshold",
		"event_handler", "event_handler_enabled",
		"low_flap_threshold", "high_flap_threshold",
		"flap_detection_enabled", "flap_detection_options",
		"process_perf_data", "retain_status_information",
		"retain_nonstatus_information",
		"notification_interval", "register",
		"first_notification_delay",
		"notification_period", "notification_options",
		"notifications_enabled", "contacts",
		"contact_groups", "stalking_options", "notes",
		"notes_url", "action_url", "icon_image",
		"icon_image_alt", "use",
	)

	hostgroupDirectives = set(
		"hostgroup_name", "alias", "members",
		"hostgroup_members", "notes", "notes_url", "action_url",
	)

	servicegroupDirectives = set(
		"servicegroup_name", "alias", "members",
		"servicegroup_members", "notes", "notes_url", "action_url",
	)

	contactDirectives = set(
		"contact_name", "alias", "contactgroups",
		"host_notifications_enabled",
		"service_notifications_enabled",
		"host_notification_period",
		"service_notification_period",
		"host_notification_options",
		"service_notification_options",
		"host_notification_commands",
		"service_notification_commands",
		"email", "pager", "addressx",
		"can_submit_commands",
		"retain_status_information", "retain_nonstatus_information",
	)

	contactgroupDirectives = set(
		"contactgroup_name", "alias", "members", "contactgroup_members",
	)

	commandDirectives = set("command_name", "command_line")
)

// Permitted reports whether a parameter may appear in a stanza of the
// given entity type. An entity type without a whitelist passes
// everything.
func (et EntityType) Permitted(param string) bool {
	if et.Whitelist == nil {
		return true
	}
	_, ok := et.Whitelist[param]
	return ok
}
