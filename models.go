package main

import "time"

// Roles a user account can hold. There is no hierarchy: a route that
// requires "user" is not satisfied by "admin" unless the route says so.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a registered community member.
type User struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	Password      string    `json:"-"`
	Role          string    `json:"role"`
	AvatarPath    string    `json:"avatar_path,omitempty"`
	YouTubeVideos []string  `json:"youtube_videos,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// PublicProfile strips the fields other users should not see.
func (u *User) PublicProfile() map[string]interface{} {
	return map[string]interface{}{
		"id":             u.ID,
		"username":       u.Username,
		"avatar_path":    u.AvatarPath,
		"youtube_videos": u.YouTubeVideos,
		"created_at":     u.CreatedAt,
	}
}

// Material is one entry of a project's bill of materials.
type Material struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

// Project is a posted DIY project. Description is rich text and stored
// opaque; rendering and sanitization happen on the client.
type Project struct {
	ID          int64      `json:"id"`
	OwnerID     int64      `json:"owner_id"`
	Title       string     `json:"title"`
	Category    string     `json:"category"`
	Difficulty  string     `json:"difficulty"`
	Duration    string     `json:"duration"`
	Cost        string     `json:"cost"`
	Description string     `json:"description"`
	Materials   []Material `json:"materials"`
	Tools       []string   `json:"tools"`
	Images      []string   `json:"images"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// maxProjectImages caps the image list per project.
const maxProjectImages = 10

// Comment is a user comment on a project.
type Comment struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	AuthorID  int64     `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
