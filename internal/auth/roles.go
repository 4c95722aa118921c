package auth

// Role is a project membership role
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

var roleRank = map[Role]int{
	RoleOwner:  4,
	RoleAdmin:  3,
	RoleMember: 2,
	RoleViewer: 1,
}

// Rank returns the numeric rank of a role; unknown roles rank 0.
func (r Role) Rank() int {
	return roleRank[r]
}

// Valid reports whether r is one of the four known roles
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// RoleSatisfies reports whether actual is at least required.
// An empty required role is satisfied by any known role.
func RoleSatisfies(actual, required Role) bool {
	if required == "" {
		return actual.Valid()
	}
	return actual.Rank() >= required.Rank() && actual.Valid()
}
