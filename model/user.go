package model

import (
	"net/mail"
	"time"
)

// User is an account row. Username is the login handle and is not unique.
type User struct {
	UserID       int64     `json:"userId"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // bcrypt hash, never the password itself
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Registration is the sign-up form. Password is hashed before it reaches a store.
type Registration struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
}

// Validate checks the required fields and the email format.
func (r Registration) Validate() error {
	v := &ValidationError{}
	v.required("email", r.Email)
	if r.Email != "" {
		if addr, err := mail.ParseAddress(r.Email); err != nil || addr.Address != r.Email {
			v.Add("email", "invalid email address")
		}
	}
	v.required("username", r.Username)
	if r.Password == "" {
		v.Add("password", "is required")
	}
	v.required("firstName", r.FirstName)
	v.required("lastName", r.LastName)
	return v.Err()
}

// Identity is the authenticated principal carried for the rest of a session.
type Identity struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}
