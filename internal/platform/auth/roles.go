package auth

// Role is the single role a clinic user holds.
type Role string

const (
	RoleInactive   Role = "Usuario Inactivo"
	RoleActive     Role = "Usuario Activo"
	RoleAdmin      Role = "Administrador"
	RoleSuperAdmin Role = "Super Administrador"
)

// DefaultRole is assigned to users without an explicit role.
const DefaultRole = RoleInactive

var validRoles = map[Role]bool{
	RoleInactive:   true,
	RoleActive:     true,
	RoleAdmin:      true,
	RoleSuperAdmin: true,
}

func (r Role) Valid() bool { return validRoles[r] }

// Privileged roles may act on other users' appointments and bypass the
// cancellation policy.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

func (r Role) String() string { return string(r) }

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   Role
}

func (a *Actor) Privileged() bool {
	return a != nil && a.Role.Privileged()
}

// CanAccess reports whether the actor may read or act on a resource owned by
// ownerID.
func (a *Actor) CanAccess(ownerID string) bool {
	if a == nil {
		return false
	}
	return a.UserID == ownerID || a.Role.Privileged()
}
