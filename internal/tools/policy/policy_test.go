package policy

import "testing"

func TestDenyAlwaysWins(t *testing.T) {
	r := NewResolver()
	p := &Policy{Profile: ProfileFull, Deny: []string{"exec"}}

	if r.IsAllowed(p, "exec") {
		t.Fatal("deny should beat the full profile")
	}
	if !r.IsAllowed(p, "read") {
		t.Fatal("full profile should admit undenied tools")
	}
	// Aliases normalize before matching.
	if r.IsAllowed(p, "bash") {
		t.Fatal("alias of a denied tool should also be denied")
	}
}

func TestProfileBaselines(t *testing.T) {
	r := NewResolver()

	coding := &Policy{Profile: ProfileCoding}
	for _, tool := range []string{"read", "write", "exec", "memory_search"} {
		if !r.IsAllowed(coding, tool) {
			t.Errorf("coding profile should allow %q", tool)
		}
	}
	if r.IsAllowed(coding, "browser") {
		t.Error("coding profile should not allow the browser tool")
	}

	readonly := &Policy{Profile: ProfileReadonly}
	if !r.IsAllowed(readonly, "read") || r.IsAllowed(readonly, "write") {
		t.Error("readonly profile should read but not write")
	}

	minimal := &Policy{Profile: ProfileMinimal}
	if !r.IsAllowed(minimal, "system_health") || r.IsAllowed(minimal, "read") {
		t.Error("minimal profile should only expose the system tools")
	}
}

func TestExplicitAllowExtendsProfile(t *testing.T) {
	r := NewResolver()
	p := &Policy{Profile: ProfileMinimal, Allow: []string{"group:fs"}}

	if !r.IsAllowed(p, "edit") {
		t.Fatal("explicit group allow should extend the profile")
	}
}

func TestMCPPatterns(t *testing.T) {
	r := NewResolver()

	// Bridged MCP tools register as mcp_<server>_<tool>.
	all := &Policy{Allow: []string{"mcp_*"}}
	if !r.IsAllowed(all, "mcp_github_create_issue") {
		t.Fatal("mcp_* should match every bridged tool")
	}
	if r.IsAllowed(all, "exec") {
		t.Fatal("mcp_* should not match built-in tools")
	}

	one := &Policy{Allow: []string{"mcp_github_*"}}
	if !r.IsAllowed(one, "mcp_github_create_issue") || r.IsAllowed(one, "mcp_jira_create_issue") {
		t.Fatal("server wildcard should be scoped to its server")
	}
}

func TestCustomGroups(t *testing.T) {
	// The MCP bridge registers each connected server's visible tool names
	// as group:mcp:<serverID>.
	r := NewResolver()
	r.AddGroup("group:mcp:github", []string{"mcp_github_create_issue", "mcp_github_list_prs"})

	p := &Policy{Allow: []string{"group:mcp:github"}}
	if !r.IsAllowed(p, "mcp_github_list_prs") {
		t.Fatal("custom group member should be allowed")
	}
}

func TestFilterAllowedPreservesOrder(t *testing.T) {
	r := NewResolver()
	p := &Policy{Allow: []string{"read", "write"}}

	got := r.FilterAllowed(p, []string{"write", "exec", "read"})
	if len(got) != 2 || got[0] != "write" || got[1] != "read" {
		t.Fatalf("FilterAllowed = %v", got)
	}
}

func TestNilPolicyDeniesEverything(t *testing.T) {
	r := NewResolver()
	d := r.Decide(nil, "read")
	if d.Allowed || d.Reason != "no policy configured" {
		t.Fatalf("decision = %+v", d)
	}
}

func TestDecisionReasons(t *testing.T) {
	r := NewResolver()

	denied := r.Decide(&Policy{Profile: ProfileFull, Deny: []string{"exec"}}, "exec")
	if denied.Reason != "denied by rule: exec" {
		t.Errorf("deny reason = %q", denied.Reason)
	}
	allowed := r.Decide(&Policy{Allow: []string{"read"}}, "read")
	if allowed.Reason != "allowed by rule: read" {
		t.Errorf("allow reason = %q", allowed.Reason)
	}
}
