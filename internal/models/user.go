package models

type Role string

const (
	RoleAdmin Role = "Admin"
	RoleStaff Role = "Staff"
)

type UserStatus string

const (
	UserActive    UserStatus = "Active"
	UserPending   UserStatus = "Pending"
	UserSuspended UserStatus = "Suspended"
)

// NotificationPreferences controls which out-of-band channels a user
// receives alert traffic on.
type NotificationPreferences struct {
	Email bool `json:"email"`
}

// User is the operator/staff account record consulted by the WebSocket Hub
// for role resolution and by the Notification Queue for recipient lists.
type User struct {
	ID                       string                   `json:"id"`
	Email                    string                   `json:"email"`
	Role                     Role                     `json:"role"`
	Status                   UserStatus               `json:"status"`
	NotificationPreferences  NotificationPreferences  `json:"notificationPreferences"`
}

// WantsEmailAlerts reports whether this user should be included as an email
// recipient for new alerts.
func (u User) WantsEmailAlerts() bool {
	return u.Status == UserActive && u.NotificationPreferences.Email
}
