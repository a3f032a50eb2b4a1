package rbac

type Role string
type Action string

const (
	RoleGuest Role = "guest"
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

const (
	ActionGenerate Action = "generate"
	ActionRead     Action = "read"
	ActionWrite    Action = "write"
	ActionExport   Action = "export"
	ActionAdmin    Action = "admin"
)

// Can answers role-level questions only. Whether a principal may touch a
// particular idea is decided by ownership on top of this.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleUser:
		return action == ActionGenerate || action == ActionRead || action == ActionWrite || action == ActionExport
	case RoleGuest:
		return action == ActionGenerate
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleGuest, RoleUser, RoleAdmin:
		return Role(role)
	default:
		return RoleGuest
	}
}
