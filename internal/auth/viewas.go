package auth

// ViewAs returns the role whose dashboard should be rendered for a user whose
// real role is actual and who asked to view the portal as requested.
//
// The override is honoured only for roles holding CapViewAs and only for a
// known role name; otherwise actual is returned unchanged. The result is for
// presentation only. Data endpoints authorize on the actual role.
func ViewAs(actual Role, requested string) (display Role, applied bool) {
	if requested == "" || !actual.Can(CapViewAs) {
		return actual, false
	}
	r, ok := ParseRole(requested)
	if !ok || r == actual {
		return actual, false
	}
	return r, true
}
