package service

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

const (
	minPasswordLength = 6
	minNameLength     = 2
)

var (
	emailPattern      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	nationalIDPattern = regexp.MustCompile(`^\d{14}$`)
	phonePattern      = regexp.MustCompile(`^\d{11}$`)
)

func validateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return invalid("email", "enter a valid email address")
	}
	return nil
}

func validateLogin(email, password string) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	if len(password) < minPasswordLength {
		return invalid("password", "password must be at least 6 characters")
	}
	return nil
}

// validateStrongPassword wants an upper and a lower case letter, a digit and '@'.
func validateStrongPassword(password string) error {
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if len(password) < minPasswordLength || !upper || !lower || !digit || !strings.Contains(password, "@") {
		return invalid("password", "password needs 6+ characters with upper and lower case letters, a digit and '@'")
	}
	return nil
}

func validateUser(u domain.User, passwordRequired bool) error {
	if len(strings.TrimSpace(u.FirstName)) < minNameLength {
		return invalid("firstName", "first name must be at least 2 characters")
	}
	if len(strings.TrimSpace(u.LastName)) < minNameLength {
		return invalid("lastName", "last name must be at least 2 characters")
	}
	if err := validateEmail(u.Email); err != nil {
		return err
	}
	if passwordRequired || u.Password != "" {
		if err := validateStrongPassword(u.Password); err != nil {
			return err
		}
	}
	if !nationalIDPattern.MatchString(u.NationalID) {
		return invalid("nationalID", "national id must be exactly 14 digits")
	}
	if !phonePattern.MatchString(u.PhoneNumber) {
		return invalid("phoneNumber", "phone number must be exactly 11 digits")
	}
	return nil
}
