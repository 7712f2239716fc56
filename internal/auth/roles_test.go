package auth

import "testing"

func TestParseRole(t *testing.T) {
	for _, r := range AllRoles() {
		got, ok := ParseRole(string(r))
		if !ok || got != r {
			t.Errorf("ParseRole(%q) = %q, %v", r, got, ok)
		}
	}
	for _, s := range []string{"", "Admin", "superuser", "bbt_"} {
		if _, ok := ParseRole(s); ok {
			t.Errorf("ParseRole(%q) should fail", s)
		}
	}
	if len(AllRoles()) != 11 {
		t.Errorf("expected 11 roles, got %d", len(AllRoles()))
	}
}

func TestCapabilityTable(t *testing.T) {
	tests := []struct {
		role Role
		cap  Capability
		want bool
	}{
		{RoleAdmin, CapManageRequests, true},
		{RoleBBTExecutionTeam, CapManageRequests, true},
		{RoleBBTFinance, CapManageRequests, false},
		{RoleSeller, CapManageRequests, false},

		{RoleBBTLegal, CapViewAllDeals, true},
		{RoleBBTExec, CapViewAllDeals, true},
		{RoleAdmin, CapViewAllDeals, true},
		{RoleSeller, CapViewAllDeals, false},
		{RoleRSM, CapViewAllDeals, false},

		{RoleSellerFinancial, CapUploadDocuments, true},
		{RoleBBTOperations, CapUploadDocuments, false},
		{RoleHensenEfron, CapUploadDocuments, false},
		{RoleSellerLegal, CapSubmitResponses, true},

		{RoleRSM, CapDownloadDocuments, true},
		{Role("ghost"), CapDownloadDocuments, false},

		{RoleAdmin, CapManageProfiles, true},
		{RoleBBTExecutionTeam, CapManageProfiles, false},
		{RoleAdmin, CapReadAudit, true},
		{RoleBBTExec, CapReadAudit, false},

		{RoleAdmin, CapViewAs, true},
		{RoleBBTExecutionTeam, CapViewAs, true},
		{RoleBBTOperations, CapViewAs, false},
		{RoleSeller, CapViewAs, false},
	}
	for _, tt := range tests {
		if got := tt.role.Can(tt.cap); got != tt.want {
			t.Errorf("%s.Can(%s) = %v, want %v", tt.role, tt.cap, got, tt.want)
		}
	}
}

func TestRestrictiveRoleIsMinimal(t *testing.T) {
	// Every capability of the restrictive role must be held by every seller
	// role, so falling back to it never grants more than a real seller has.
	for _, c := range RestrictiveRole.Capabilities() {
		for _, r := range []Role{RoleSeller, RoleSellerLegal, RoleSellerFinancial} {
			if !r.Can(c) {
				t.Errorf("%s lacks %s held by the restrictive role", r, c)
			}
		}
	}
	for _, c := range []Capability{CapManageRequests, CapViewAllDeals, CapManageProfiles, CapReadAudit, CapViewAs} {
		if RestrictiveRole.Can(c) {
			t.Errorf("restrictive role must not hold %s", c)
		}
	}
}

func TestCanDeleteDocument(t *testing.T) {
	tests := []struct {
		role     Role
		approved bool
		want     bool
	}{
		{RoleAdmin, true, true},
		{RoleBBTExecutionTeam, true, true},
		{RoleSeller, false, true},
		{RoleSeller, true, false},
		{RoleSellerLegal, false, true},
		{RoleBBTFinance, false, false},
		{RoleRSM, false, false},
	}
	for _, tt := range tests {
		if got := CanDeleteDocument(tt.role, tt.approved); got != tt.want {
			t.Errorf("CanDeleteDocument(%s, approved=%v) = %v, want %v", tt.role, tt.approved, got, tt.want)
		}
	}
}

func TestRoleGroups(t *testing.T) {
	if !RoleBBTExec.IsBBT() || RoleAdmin.IsBBT() {
		t.Error("IsBBT classification wrong")
	}
	if !RoleSellerFinancial.IsSeller() || RoleRSM.IsSeller() {
		t.Error("IsSeller classification wrong")
	}
	if !RoleHensenEfron.IsReviewer() || RoleSeller.IsReviewer() {
		t.Error("IsReviewer classification wrong")
	}
}
