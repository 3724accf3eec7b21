package domain

import "strings"

// Identity is what the session remembers about the logged in user.
type Identity struct {
	UserID   string `json:"userId"`
	Token    string `json:"token"`
	UserName string `json:"userName"`
}

func (i Identity) Authenticated() bool {
	return i.UserID != ""
}

type User struct {
	ID          ID     `json:"id,omitempty"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	NationalID  string `json:"nationalID"`
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password,omitempty"`
}

// DisplayName is "first last" as shown in the greeting.
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
