package model

// UserProfile is the read-time projection from the user directory. Chats never
// persist these fields; they are joined by id when building views.
type UserProfile struct {
	ID        string `json:"user_id"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	Bio       string `json:"bio,omitempty"`
	AvatarURL string `json:"avatar,omitempty"`
}
