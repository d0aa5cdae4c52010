package rbac

type Role string
type Action string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

const (
	ActionRead      Action = "read"
	ActionSubmit    Action = "submit"
	ActionReact     Action = "react"
	ActionComment   Action = "comment"
	ActionModerate  Action = "moderate"
	ActionAnalytics Action = "analytics"
)

// Can reports whether role may perform action. Admins moderate but do not
// submit feedback of their own.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return action != ActionSubmit
	case RoleUser:
		return action == ActionRead || action == ActionSubmit || action == ActionReact || action == ActionComment
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleUser, RoleAdmin:
		return Role(role)
	default:
		return RoleUser
	}
}
