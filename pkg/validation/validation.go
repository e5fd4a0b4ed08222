package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// IDRegex validates participant, consultation, call and triage session ids.
	IDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateID validates an identifier used on the wire.
func ValidateID(id, fieldName string) error {
	if id == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	if len(id) > 100 {
		return fmt.Errorf("%s is too long (max 100 characters)", fieldName)
	}
	if !IDRegex.MatchString(id) {
		return fmt.Errorf("invalid %s format", fieldName)
	}
	return nil
}

// ValidatePatientName validates the display name captured at consultation request.
func ValidatePatientName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("patient name is required")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("patient name contains invalid characters")
	}
	return ValidateStringLength(name, 1, 120, "patient name")
}

// ValidateNotes bounds free-text consultation notes.
func ValidateNotes(notes string) error {
	if !utf8.ValidString(notes) {
		return fmt.Errorf("notes contain invalid characters")
	}
	return ValidateStringLength(notes, 0, 10000, "notes")
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
