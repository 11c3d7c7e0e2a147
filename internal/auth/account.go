package auth

import (
	"regexp"
	"strings"

	"shaneshark.com/portfolio/internal/apperr"
	"shaneshark.com/portfolio/internal/store"
)

var (
	phonePattern = regexp.MustCompile(`^1[3-9]\d{9}$`)
	emailPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+@[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)+$`)
)

// AccountType classifies an account as store.CodeTypePhone or store.CodeTypeEmail
func AccountType(account string) (string, error) {
	account = strings.TrimSpace(account)
	switch {
	case phonePattern.MatchString(account):
		return store.CodeTypePhone, nil
	case emailPattern.MatchString(account):
		return store.CodeTypeEmail, nil
	default:
		return "", apperr.Params("account must be a phone number or e-mail")
	}
}
