// Package validation provides common validation functions for identifiers
// used as filesystem or URL path segments. This package has no dependencies
// on other internal packages to avoid import cycles.
package validation

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidStudentID indicates the student_id value is malformed or
// attempts path traversal.
var ErrInvalidStudentID = errors.New("invalid student_id")

// ErrInvalidSkill indicates the skill value is not a single safe path segment.
var ErrInvalidSkill = errors.New("invalid skill")

// StudentID checks that a student ID is safe for use as a single feature
// store URL path segment, rejecting empty values, ".", "..", and anything
// containing a path separator.
func StudentID(studentID string) (string, error) {
	return segment(studentID, ErrInvalidStudentID)
}

// Skill checks that a skill name is safe for use as a single URL path
// segment, using the same rules as StudentID.
func Skill(skill string) (string, error) {
	return segment(skill, ErrInvalidSkill)
}

func segment(value string, invalid error) (string, error) {
	if value == "" {
		return "", invalid
	}
	if value == "." || value == ".." {
		return "", invalid
	}
	if strings.ContainsAny(value, `/\`) {
		return "", invalid
	}

	clean := filepath.Clean(value)
	if clean != value ||
		strings.HasPrefix(clean, "..") ||
		strings.Contains(clean, string(os.PathSeparator)+"..") ||
		filepath.IsAbs(clean) {
		return "", invalid
	}

	return clean, nil
}
