package domain

import (
	"fmt"
	"strings"
)

// PersonID is a canonical national identity number (11 digits). The registry
// also emits temporary identifiers (D-numbers, synthetic test ranges); those
// never become a PersonID - the resolver drops events it cannot map to a
// permanent identifier.
type PersonID string

// ParsePersonID validates that raw is an 11-digit identifier and returns it as
// a typed ID. It deliberately does not verify the control digits; the registry
// is the system of record and we do not second-guess identifiers it issued.
func ParsePersonID(raw string) (PersonID, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) != 11 {
		return "", fmt.Errorf("person id must be 11 digits, got %d characters", len(trimmed))
	}
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("person id must be numeric")
		}
	}
	return PersonID(trimmed), nil
}

func (p PersonID) String() string { return string(p) }

// IsZero reports whether the ID is unset.
func (p PersonID) IsZero() bool { return p == "" }

// Masked returns the identifier with the five individual digits hidden,
// keeping the birth-date part. Use this form in logs.
func (p PersonID) Masked() string {
	if len(p) != 11 {
		return "invalid"
	}
	return string(p[:6]) + "*****"
}
