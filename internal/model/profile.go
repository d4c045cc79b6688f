package model

import (
	"strings"
	"time"
)

// Profile is the per-identity document in the "users" collection, keyed by
// the identity ID. It is written as a full replace, never merged.
//
// ProfileCompleted is the gate the session manager reads: an absent
// document and a false flag are treated the same way.
type Profile struct {
	UID              string    `json:"uid"`
	Email            string    `json:"email"`
	FullName         string    `json:"fullName,omitempty"`
	Year             string    `json:"year"`
	Course           string    `json:"course"`
	TechStack        string    `json:"techStack"` // free text, comma separated
	Contact          string    `json:"contact"`   // phone number or LinkedIn URL
	ProfileCompleted bool      `json:"profileCompleted"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// HasRequiredFields reports whether every field the completion form asks
// for is filled in. FullName is optional.
func (p *Profile) HasRequiredFields() bool {
	return p.MissingField() == ""
}

// MissingField returns the json name of the first blank required field, or
// "" when there is none.
func (p *Profile) MissingField() string {
	for _, f := range []struct{ name, value string }{
		{"year", p.Year},
		{"course", p.Course},
		{"techStack", p.TechStack},
		{"contact", p.Contact},
	} {
		if strings.TrimSpace(f.value) == "" {
			return f.name
		}
	}
	return ""
}
