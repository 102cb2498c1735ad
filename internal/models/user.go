package models

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleStaff   UserRole = "staff"
	RoleGuest   UserRole = "guest"
)

// User is created on first sign-in and soft-abandoned, never deleted.
// Timestamps are store-formatted UTC strings so document order matches
// chronological order.
type User struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	PasswordHash string   `json:"password_hash"`
	DisplayName  string   `json:"display_name"`
	Role         UserRole `json:"role"`
	AvatarURL    string   `json:"avatar_url"`
	IsOnline     bool     `json:"is_online"`
	LastSeen     string   `json:"last_seen"`
	CreatedAt    string   `json:"created_at"`
}

type UserResponse struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name"`
	Role        UserRole `json:"role"`
	AvatarURL   string   `json:"avatar_url"`
	IsOnline    bool     `json:"is_online"`
	LastSeen    string   `json:"last_seen"`
}

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		AvatarURL:   u.AvatarURL,
		IsOnline:    u.IsOnline,
		LastSeen:    u.LastSeen,
	}
}
