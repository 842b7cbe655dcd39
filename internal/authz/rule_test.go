package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRuleTwoPartForm(t *testing.T) {
	rule, err := ParseRule("report:read")
	require.NoError(t, err)
	assert.True(t, rule.Matches(ResourceReport, ActionRead))
	assert.False(t, rule.Matches(ResourceReport, ActionDelete))
	assert.False(t, rule.Matches(ResourceAccount, ActionRead))
}

func TestParseRuleThreePartFormIgnoresScopeToken(t *testing.T) {
	rule, err := ParseRule("account:own:update")
	require.NoError(t, err)
	assert.True(t, rule.Matches(ResourceAccount, ActionUpdate))
	assert.False(t, rule.Matches(ResourceAccount, ActionDelete))
}

func TestParseRuleWildcards(t *testing.T) {
	all, err := ParseRule("*:*")
	require.NoError(t, err)
	assert.True(t, all.Matches(ResourceSystem, ActionManage))
	assert.True(t, all.Matches(ResourceDocument, ActionRead))

	anyAction, err := ParseRule("tool:*")
	require.NoError(t, err)
	assert.True(t, anyAction.Matches(ResourceTool, ActionDelete))
	assert.False(t, anyAction.Matches(ResourceClient, ActionDelete))
}

func TestParseRuleManageImpliesAllActions(t *testing.T) {
	rule, err := ParseRule("client:manage")
	require.NoError(t, err)
	for _, act := range Actions() {
		assert.True(t, rule.Matches(ResourceClient, act), "manage should imply %s", act)
	}
	assert.False(t, rule.Matches(ResourceAccount, ActionRead))
}

func TestParseRuleNormalizesCaseAndSpace(t *testing.T) {
	rule, err := ParseRule("  Report : Read ")
	require.NoError(t, err)
	assert.True(t, rule.Matches(ResourceReport, ActionRead))
}

func TestParseRuleRejectsMalformed(t *testing.T) {
	cases := []string{"", "report", "report:own:extra:read", ":read", "report:", "spaceship:read", "report:teleport"}
	for _, raw := range cases {
		_, err := ParseRule(raw)
		assert.Error(t, err, "expected rejection for %q", raw)
	}
}

func TestRuleStringRoundTrip(t *testing.T) {
	for _, raw := range []string{"report:read", "client:manage", "tool:*", "*:*"} {
		rule, err := ParseRule(raw)
		require.NoError(t, err)
		again, err := ParseRule(rule.String())
		require.NoError(t, err)
		assert.Equal(t, rule, again, "string form of %q should parse back", raw)
	}
}
