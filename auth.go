package main

import (
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

const (
	minUsernameLength = 3
	minPasswordLength = 6
)

func hashPassword(p string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(p), bcrypt.DefaultCost)
	return string(b), err
}

func comparePassword(hash, p string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(p)) == nil
}

// dummyHash is compared against when the username is unknown so a failed
// login takes the same time whether or not the account exists.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("todoapp-dummy-password"), bcrypt.DefaultCost)

func checkCredentials(u *User, password string) bool {
	if u == nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	return comparePassword(u.Password, password)
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r registerRequest) validate() validation {
	v := validation{}
	switch {
	case r.Username == "":
		v.add("username", "Username is required")
	case len(r.Username) < minUsernameLength:
		v.add("username", "Username must be at least 3 characters")
	}
	switch {
	case r.Email == "":
		v.add("email", "Email is required")
	case !emailPattern.MatchString(r.Email):
		v.add("email", "The email must be a valid email address")
	}
	switch {
	case r.Password == "":
		v.add("password", "Password is required")
	case len(r.Password) < minPasswordLength:
		v.add("password", "The password must be at least 6 characters")
	}
	return v
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r loginRequest) validate() validation {
	v := validation{}
	if r.Username == "" {
		v.add("username", "Username is required")
	}
	if r.Password == "" {
		v.add("password", "Password is required")
	}
	return v
}
