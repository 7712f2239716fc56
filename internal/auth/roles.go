// Package auth - roles.go defines the closed set of portal roles and the
// capability table that is the only authorization policy in the system.
package auth

import "strings"

// Role is one of the fixed portal roles.
type Role string

const (
	// Admin organisation ("BBT") roles
	RoleBBTExecutionTeam Role = "bbt_execution_team"
	RoleBBTOperations    Role = "bbt_operations"
	RoleBBTFinance       Role = "bbt_finance"
	RoleBBTLegal         Role = "bbt_legal"
	RoleBBTExec          Role = "bbt_exec"

	// Seller roles
	RoleSeller          Role = "seller"
	RoleSellerLegal     Role = "seller_legal"
	RoleSellerFinancial Role = "seller_financial"

	// External reviewer roles
	RoleRSM         Role = "rsm"
	RoleHensenEfron Role = "hensen_efron"

	RoleAdmin Role = "admin"
)

// RestrictiveRole is what every unresolved identity is treated as.
const RestrictiveRole = RoleSeller

// AllRoles returns every role in display order.
func AllRoles() []Role {
	return []Role{
		RoleAdmin,
		RoleBBTExecutionTeam,
		RoleBBTOperations,
		RoleBBTFinance,
		RoleBBTLegal,
		RoleBBTExec,
		RoleSeller,
		RoleSellerLegal,
		RoleSellerFinancial,
		RoleRSM,
		RoleHensenEfron,
	}
}

// ParseRole maps a stored role string to a Role. Matching is exact.
func ParseRole(s string) (Role, bool) {
	for _, r := range AllRoles() {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// IsBBT reports whether r belongs to the admin organisation.
func (r Role) IsBBT() bool {
	return strings.HasPrefix(string(r), "bbt_")
}

// IsSeller reports whether r is one of the seller roles.
func (r Role) IsSeller() bool {
	return r == RoleSeller || r == RoleSellerLegal || r == RoleSellerFinancial
}

// IsReviewer reports whether r is an external reviewer role.
func (r Role) IsReviewer() bool {
	return r == RoleRSM || r == RoleHensenEfron
}

// Capability is an action a role may perform.
type Capability string

const (
	// CapManageRequests covers request create/edit/delete, assignment, bulk
	// status, template seeding and deal creation.
	CapManageRequests    Capability = "manage_requests"
	CapViewAllDeals      Capability = "view_all_deals"
	CapUploadDocuments   Capability = "upload_documents"
	CapSubmitResponses   Capability = "submit_responses"
	CapDeleteDocuments   Capability = "delete_documents"
	CapDownloadDocuments Capability = "download_documents"
	CapManageProfiles    Capability = "manage_profiles"
	CapReadAudit         Capability = "read_audit"
	CapViewAs            Capability = "view_as"
)

// AllCapabilities returns every capability.
func AllCapabilities() []Capability {
	return []Capability{
		CapManageRequests,
		CapViewAllDeals,
		CapUploadDocuments,
		CapSubmitResponses,
		CapDeleteDocuments,
		CapDownloadDocuments,
		CapManageProfiles,
		CapReadAudit,
		CapViewAs,
	}
}

func isRequestManager(r Role) bool { return r == RoleAdmin || r == RoleBBTExecutionTeam }

// Can reports whether r holds capability c. CapDeleteDocuments is granted to
// sellers here; CanDeleteDocument adds the request-status condition.
func (r Role) Can(c Capability) bool {
	switch c {
	case CapManageRequests, CapViewAs:
		return isRequestManager(r)
	case CapViewAllDeals:
		return r == RoleAdmin || r.IsBBT()
	case CapUploadDocuments, CapSubmitResponses, CapDeleteDocuments:
		return isRequestManager(r) || r.IsSeller()
	case CapDownloadDocuments:
		_, known := ParseRole(string(r))
		return known
	case CapManageProfiles, CapReadAudit:
		return r == RoleAdmin
	default:
		return false
	}
}

// Capabilities lists what r may do.
func (r Role) Capabilities() []Capability {
	caps := make([]Capability, 0)
	for _, c := range AllCapabilities() {
		if r.Can(c) {
			caps = append(caps, c)
		}
	}
	return caps
}

// CanDeleteDocument applies the delete rule for a document on a request in
// the given status: request managers always, sellers only before approval.
func CanDeleteDocument(r Role, requestApproved bool) bool {
	if isRequestManager(r) {
		return true
	}
	return r.IsSeller() && !requestApproved
}
