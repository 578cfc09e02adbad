package auth

import "slices"

// DefaultAllowedGroups are the roles granted access to protected routes:
// fleet managers and train operators.
var DefaultAllowedGroups = []string{"Gestores", "Maquinistas"}

// UserInGroups reports whether user belongs to any of the allowed
// groups. With no allowed groups given DefaultAllowedGroups is used.
func UserInGroups(user *User, allowed ...string) bool {
	if user == nil {
		return false
	}
	if len(allowed) == 0 {
		allowed = DefaultAllowedGroups
	}

	for _, g := range user.Groups {
		if g.Name != "" && slices.Contains(allowed, g.Name) {
			return true
		}
	}
	return false
}

// RawUserInGroups applies UserInGroups to an unnormalized user payload
func RawUserInGroups(raw map[string]any, allowed ...string) bool {
	return UserInGroups(NormalizeUser(raw), allowed...)
}
