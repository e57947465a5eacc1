package model

// Role of a principal.
type Role string

const (
	RoleAdmin Role = "Admin"
	RoleUser  Role = "User"
)

// Principal is the authenticated identity an upstream gateway attaches to a
// request. Authentication itself is outside this service; the principal is
// trusted as given.
type Principal struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Mobile     string `json:"mobile,omitempty"`
	Department string `json:"department,omitempty"`
	Role       Role   `json:"role"`
}

// IsAdmin reports whether the principal carries the administrator role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }
