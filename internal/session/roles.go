package session

// Role is one of the closed set of field roles.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOfficer  Role = "officer"
	RoleForensic Role = "forensic"
	RoleAnalyst  Role = "analyst"
)

// ParseRole maps a raw role string onto the closed set.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleAdmin, RoleOfficer, RoleForensic, RoleAnalyst:
		return r, true
	}
	return "", false
}

// Role derives the current user's role. It is recomputed from the cached
// user on every call.
func (c *Cache) Role() (Role, bool) {
	return ParseRole(c.User().Role())
}

// HasRole reports whether the current user holds any of roles.
func (c *Cache) HasRole(roles ...Role) bool {
	current, ok := c.Role()
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == current {
			return true
		}
	}
	return false
}

func (c *Cache) IsAdmin() bool    { return c.HasRole(RoleAdmin) }
func (c *Cache) IsOfficer() bool  { return c.HasRole(RoleOfficer) }
func (c *Cache) IsForensic() bool { return c.HasRole(RoleForensic) }
func (c *Cache) IsAnalyst() bool  { return c.HasRole(RoleAnalyst) }
