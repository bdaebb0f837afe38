package models

import "time"

// User roles. Admins and moderators hold moderation privilege.
const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleUser      = "user"
)

// User is an account known to the privilege store.
type User struct {
	UID      string
	Username string
	Role     string
	Created  time.Time
}
