package models

import "time"

// Permission is a user's access level within one project.
type Permission string

const (
	PermissionOwner  Permission = "owner"
	PermissionEditor Permission = "editor"
	PermissionViewer Permission = "viewer"
	// PermissionNone is computed, never stored.
	PermissionNone Permission = "none"
)

// Valid reports whether p may be stored in a permission map.
func (p Permission) Valid() bool {
	switch p {
	case PermissionOwner, PermissionEditor, PermissionViewer:
		return true
	}
	return false
}

// Permissions maps user id to permission level. It is the only record of
// project membership.
type Permissions map[string]Permission

// Of returns the level held by userID, or PermissionNone.
func (p Permissions) Of(userID string) Permission {
	if perm, ok := p[userID]; ok && perm.Valid() {
		return perm
	}
	return PermissionNone
}

// Owners returns the ids holding PermissionOwner.
func (p Permissions) Owners() []string {
	var owners []string
	for id, perm := range p {
		if perm == PermissionOwner {
			owners = append(owners, id)
		}
	}
	return owners
}

// Project represents a project in the system
type Project struct {
	ID          string      `json:"id"`
	Version     int64       `json:"version"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Permissions Permissions `json:"permissions"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// ProjectUpdate carries optional project metadata changes. Blank fields are ignored.
type ProjectUpdate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Member is a permission map entry joined with the user record.
type Member struct {
	UserID     string     `json:"user_id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Permission Permission `json:"permission"`
}
