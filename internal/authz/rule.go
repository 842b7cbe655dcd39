package authz

import (
	"fmt"
	"strings"
)

// Rule is one parsed entry of a role's default permission set.
//
// Catalog rows store rules as "resource:scope:action" strings (the scope
// token narrows enforcement, not matrix membership, and is ignored here).
// Parsing happens once at catalog load, never per resolution.
type Rule struct {
	// AnyResource matches every resource type ("*").
	AnyResource bool
	Resource    ResourceType

	// AnyAction matches every action ("*"). Manage is the "manage"
	// token, which also implies every action on the resource.
	AnyAction bool
	Manage    bool
	Action    Action
}

// Matches reports whether the rule grants the resource/action pair.
func (r Rule) Matches(rt ResourceType, act Action) bool {
	if !r.AnyResource && r.Resource != rt {
		return false
	}
	if r.AnyAction || r.Manage {
		return true
	}
	return r.Action == act
}

// ParseRule parses a stored rule string. Both "resource:action" and
// "resource:scope:action" forms are accepted.
func ParseRule(raw string) (Rule, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	var resource, action string
	switch len(parts) {
	case 2:
		resource, action = parts[0], parts[1]
	case 3:
		resource, action = parts[0], parts[2]
	default:
		return Rule{}, fmt.Errorf("authz: malformed permission rule %q", raw)
	}

	resource = strings.ToLower(strings.TrimSpace(resource))
	action = strings.ToLower(strings.TrimSpace(action))
	if resource == "" || action == "" {
		return Rule{}, fmt.Errorf("authz: malformed permission rule %q", raw)
	}

	var rule Rule
	switch resource {
	case "*":
		rule.AnyResource = true
	default:
		rt := ResourceType(resource)
		if !KnownResourceType(rt) {
			return Rule{}, fmt.Errorf("authz: rule %q references unknown resource type", raw)
		}
		rule.Resource = rt
	}

	switch action {
	case "*":
		rule.AnyAction = true
	case string(ActionManage):
		rule.Manage = true
	default:
		act := Action(action)
		if !KnownAction(act) {
			return Rule{}, fmt.Errorf("authz: rule %q references unknown action", raw)
		}
		rule.Action = act
	}
	return rule, nil
}

func (r Rule) String() string {
	resource := "*"
	if !r.AnyResource {
		resource = string(r.Resource)
	}
	action := string(r.Action)
	switch {
	case r.AnyAction:
		action = "*"
	case r.Manage:
		action = string(ActionManage)
	}
	return resource + ":" + action
}
