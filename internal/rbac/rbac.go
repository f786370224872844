package rbac

type Role string
type Action string

const (
	RoleMember  Role = "member"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

const (
	ActionRead    Action = "read"
	ActionWrite   Action = "write"
	ActionApprove Action = "approve"
	ActionAdmin   Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleManager:
		return action == ActionRead || action == ActionWrite || action == ActionApprove
	case RoleMember:
		return action == ActionRead || action == ActionWrite
	default:
		return false
	}
}

// CanEdit reports whether role may modify an objective owned by ownerID.
// Members may only edit their own objectives.
func CanEdit(role Role, userID, ownerID string) bool {
	if !Can(role, ActionWrite) {
		return false
	}
	return role != RoleMember || userID == ownerID
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleMember, RoleManager, RoleAdmin:
		return Role(role)
	default:
		return RoleMember
	}
}
