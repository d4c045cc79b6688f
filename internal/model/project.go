package model

import (
	"maps"
	"strings"
	"time"
	"unicode/utf8"
)

// ContactType selects which single contact method a project advertises.
type ContactType string

const (
	ContactNone     ContactType = ""
	ContactPhone    ContactType = "phone"
	ContactLinkedIn ContactType = "linkedin"
)

// Domains lists the project domains offered by the post form.
var Domains = []string{
	"AI/ML",
	"Web Development",
	"App Development",
	"Blockchain",
	"Cybersecurity",
	"IoT",
	"Game Development",
}

// PreviewLength is how many characters of a description a card shows.
const PreviewLength = 100

// Project is a team-up request in the "projects" collection.
//
// OwnerPhone and OwnerLinkedin are pointers because the stored document
// holds an explicit null for the contact method that was not chosen.
//
// Fields carries the raw document as read from the store. Older documents
// used alias keys (ownerName, postedBy, contactNumber, ...) and the uploader
// resolver needs to see them.
type Project struct {
	ID            string         `json:"id"`
	OwnerID       string         `json:"ownerId"`
	Name          string         `json:"projectName"`
	Description   string         `json:"description"`
	Domain        string         `json:"domain"`
	TechStack     []string       `json:"techStack"`
	TeamSize      int            `json:"teamSize"`
	CreatedAt     time.Time      `json:"createdAt,omitzero"`
	UploaderName  string         `json:"uploaderName"`
	OwnerEmail    string         `json:"ownerEmail"`
	OwnerPhone    *string        `json:"ownerPhone"`
	OwnerLinkedin *string        `json:"ownerLinkedin"`
	Fields        map[string]any `json:"-"`
}

// Preview returns the description cut to PreviewLength characters, with an
// ellipsis when it was cut.
func (p *Project) Preview() string {
	if utf8.RuneCountInString(p.Description) <= PreviewLength {
		return p.Description
	}
	return string([]rune(p.Description)[:PreviewLength]) + "..."
}

// TechStackLabel joins the tech stack for display.
func (p *Project) TechStackLabel() string {
	if len(p.TechStack) == 0 {
		return "N/A"
	}
	return strings.Join(p.TechStack, ", ")
}

// DomainLabel returns the domain, or N/A when none was stored.
func (p *Project) DomainLabel() string {
	if p.Domain == "" {
		return "N/A"
	}
	return p.Domain
}

// Record returns the project as a flat key/value record: the raw document
// fields overlaid with the typed ones. Uploader resolution works on this.
func (p *Project) Record() map[string]any {
	rec := make(map[string]any, len(p.Fields)+4)
	maps.Copy(rec, p.Fields)
	if p.UploaderName != "" {
		rec["uploaderName"] = p.UploaderName
	}
	if p.OwnerEmail != "" {
		rec["ownerEmail"] = p.OwnerEmail
	}
	if p.OwnerPhone != nil {
		rec["ownerPhone"] = *p.OwnerPhone
	}
	if p.OwnerLinkedin != nil {
		rec["ownerLinkedin"] = *p.OwnerLinkedin
	}
	return rec
}
