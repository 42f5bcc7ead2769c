package domain

import (
	"strings"
	"time"
)

// PlaceholderPrefix marks a post id that has not been confirmed by the store.
const PlaceholderPrefix = "temp-"

// IsPlaceholderID reports whether id belongs to an optimistic, unconfirmed post.
func IsPlaceholderID(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}

// Post is a community feed entry.
type Post struct {
	ID            string    `json:"id"`
	AuthorID      string    `json:"uid"`
	AuthorName    string    `json:"name"`
	Text          string    `json:"text"`
	Likes         int       `json:"likes"`
	CreatedAt     time.Time `json:"createdAt,omitempty"`
	Avatar        string    `json:"avatar,omitempty"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Pending       bool      `json:"pending,omitempty"`
	Pulsing       bool      `json:"pulsing,omitempty"`
}

// NewPost is the payload of a durable post create.
type NewPost struct {
	AuthorID   string
	AuthorName string
	Text       string
}

// Role controls access to admin pages.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
	RoleUser    Role = "user"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleStudent, RoleUser:
		return true
	default:
		return false
	}
}

// User is a document in the users collection.
type User struct {
	ID          string    `json:"uid"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Role        Role      `json:"role,omitempty"`
	PhotoData   string    `json:"photoData,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// UserPatch updates selected fields of a user document. Nil fields are untouched.
type UserPatch struct {
	DisplayName *string
	Role        *Role
	PhotoData   *string
}

// Identity is the authenticated principal behind a request.
type Identity struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}

// Credential is the auth provider's record of a sign-in method.
type Credential struct {
	UserID       string
	Email        string
	PasswordHash string
	Provider     string
	CreatedAt    time.Time
}

// DefaultDisplayName derives a display name from an email address.
func DefaultDisplayName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

// AdminStats summarizes the admin console counters.
type AdminStats struct {
	TotalUsers int `json:"totalUsers"`
	TotalPosts int `json:"totalPosts"`
	TodayPosts int `json:"todayPosts"`
}

// AdminOverview is the admin console payload.
type AdminOverview struct {
	Users []User     `json:"users"`
	Posts []Post     `json:"posts"`
	Stats AdminStats `json:"stats"`
}
