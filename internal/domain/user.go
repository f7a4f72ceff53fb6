package domain

import "time"

type User struct {
	ID           int64     `json:"pk"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PasswordHash []byte    `json:"-"`
	IsStaff      bool      `json:"is_staff"`
	Profile      *Profile  `json:"profile,omitempty"`
	CreatedAt    time.Time `json:"date_joined"`
}

type Profile struct {
	UserID            int64  `json:"user"`
	Bio               string `json:"bio"`
	AgreementAccepted bool   `json:"agreement_accepted"`
	Avatar            string `json:"avatar,omitempty"`
}

// CanEdit reports whether actor may mutate a resource owned by ownerID.
// Staff may edit anything; ownerID 0 marks resources without an owner.
func CanEdit(actor *User, ownerID int64) bool {
	if actor == nil {
		return false
	}
	if actor.IsStaff {
		return true
	}
	return ownerID != 0 && actor.ID == ownerID
}
