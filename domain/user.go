package domain

import "time"

// User is an account known to the storage collaborator.
// DeviceTokens are owned by the push layer and only read by delivery.
type User struct {
	ID           UserID
	Username     string
	Email        string
	PasswordHash string
	DeviceTokens []string
	CreatedAt    time.Time
}

// Profile is the public projection of a User, without credentials.
type Profile struct {
	ID        UserID    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u User) Profile() Profile {
	return Profile{ID: u.ID, Username: u.Username, Email: u.Email, CreatedAt: u.CreatedAt}
}
