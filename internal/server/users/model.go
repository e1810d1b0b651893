package users

import (
	"time"

	"github.com/dmitrijs2005/studyctl/internal/client/models"
)

type User struct {
	ID            string
	Email         string
	Name          string
	Salt          []byte
	Verifier      []byte
	EmailVerified bool
	CreatedAt     time.Time
}

// Public is the user as the API returns it.
func (u *User) Public() models.User {
	return models.User{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}

// TokenPair is what a successful login hands out.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
