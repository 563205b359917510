package auth

// Marketplace roles.
const (
	RoleUser       = "user"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

// rolePermissions is the static access table. Admin inherits everything.
var rolePermissions = map[string][]string{
	RoleUser:       {"chat", "notifications"},
	RoleInstructor: {"chat", "notifications", "courses:manage"},
	RoleAdmin:      {"chat", "notifications", "courses:manage", "users:manage"},
}

// HasPermission reports whether a role grants the named permission.
// Unknown roles grant nothing.
func HasPermission(role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}
