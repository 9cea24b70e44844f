package user

import (
	"time"

	"github.com/google/uuid"
)

// ProviderGoogle names the only external identity provider wired today.
const ProviderGoogle = "google"

type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	GoogleID  *string   `json:"-"` // external subject id; nil until first provider login
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider reports which identity provider the account is linked to, or ""
// for rows that have not been linked yet.
func (u *User) Provider() string {
	if u.GoogleID == nil {
		return ""
	}
	return ProviderGoogle
}
