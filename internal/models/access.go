package models

// AccessControl grants read/write permissions to groups and users.
// A nil *AccessControl means public read access.
type AccessControl struct {
	Read  *AccessGrant `json:"read,omitempty"`
	Write *AccessGrant `json:"write,omitempty"`
}

// AccessGrant lists the principals holding one permission
type AccessGrant struct {
	GroupIDs []string `json:"group_ids"`
	UserIDs  []string `json:"user_ids"`
}

// User is an authenticated principal
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Password  string `json:"-"`
	CreatedAt int64  `json:"created_at"`
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// IsAdmin reports whether the user has the admin role
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
