package auth

// DashboardVariant names one of the dashboard layouts.
type DashboardVariant string

const (
	DashboardBBTAdmin    DashboardVariant = "bbt_admin"
	DashboardBBTReadOnly DashboardVariant = "bbt_readonly"
	DashboardSeller      DashboardVariant = "seller"
	DashboardReviewer    DashboardVariant = "reviewer"
)

// Dashboard describes what the client renders for a role.
type Dashboard struct {
	Variant DashboardVariant `json:"variant"`
	Role    Role             `json:"role"`
	// Filters are the request-list filters offered on this dashboard.
	Filters []string `json:"filters"`
	// Actions are the capabilities whose controls are shown.
	Actions []Capability `json:"actions"`
}

var (
	adminFilters  = []string{"deal", "category", "status", "priority", "assignee", "search"}
	sellerFilters = []string{"category", "status", "priority", "search"}
)

// DashboardFor composes the dashboard for role.
func DashboardFor(role Role) Dashboard {
	d := Dashboard{Role: role, Actions: role.Capabilities()}
	switch {
	case role == RoleAdmin || role == RoleBBTExecutionTeam:
		d.Variant = DashboardBBTAdmin
		d.Filters = adminFilters
	case role.IsBBT():
		d.Variant = DashboardBBTReadOnly
		d.Filters = adminFilters
	case role.IsReviewer():
		d.Variant = DashboardReviewer
		d.Filters = sellerFilters
	default:
		d.Variant = DashboardSeller
		d.Filters = sellerFilters
	}
	return d
}
