// Package schema defines the records shared by the device caches, the HTTP
// surface and the remote API client.
package schema

import "time"

// User is the free-form identity record returned by the remote API and
// cached with the session. Only "id" and "role" are read locally.
type User map[string]any

// ID returns the user identifier, or "" when absent.
func (u User) ID() string {
	return u.str("id")
}

// Role returns the raw role string, or "" when absent.
func (u User) Role() string {
	return u.str("role")
}

func (u User) str(field string) string {
	if u == nil {
		return ""
	}
	v, _ := u[field].(string)
	return v
}

// Color is the semantic severity tag carried on an activity for display.
type Color string

const (
	ColorSuccess Color = "success"
	ColorDanger  Color = "danger"
	ColorWarning Color = "warning"
	ColorInfo    Color = "info"
	ColorPrimary Color = "primary"
)

// Valid reports whether c is one of the five known tags.
func (c Color) Valid() bool {
	switch c {
	case ColorSuccess, ColorDanger, ColorWarning, ColorInfo, ColorPrimary:
		return true
	}
	return false
}

// Activity represents one entry of the local recent-activity log.
type Activity struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Color     Color          `json:"color"`
	Timestamp string         `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// PersonRef is a recently viewed person record.
type PersonRef struct {
	PersonID string         `json:"person_id"`
	Name     string         `json:"name"`
	ViewedAt time.Time      `json:"viewed_at"`
	Details  map[string]any `json:"details,omitempty"`
}
