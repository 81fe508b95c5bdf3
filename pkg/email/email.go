// Package email provides small helpers for working with email addresses.
package email

import "strings"

// Normalize lowercases and trims an address.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// NamesFromAddress derives a first/last name guess from the local part of an
// address, e.g. "jane.doe@example.com" -> ("Jane", "Doe"). Used when an
// account is provisioned without explicit names.
func NamesFromAddress(address string) (firstName, lastName string) {
	local, _, found := strings.Cut(Normalize(address), "@")
	if !found || local == "" {
		return "", ""
	}
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return "", ""
	}
	firstName = title(parts[0])
	if len(parts) > 1 {
		lastName = title(parts[len(parts)-1])
	}
	return firstName, lastName
}

func title(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
