// Package model defines the data structures used throughout the application.
//
// The shapes here mirror the documents kept by the external collaborators:
// Identity comes from the auth provider, Profile and Project from the
// document store. There is no schema enforcement beyond these structs.
package model

// DefaultAvatarURL is shown in the navbar when the identity has no picture.
const DefaultAvatarURL = "https://www.w3schools.com/howto/img_avatar.png"

// Identity is the signed-in user as reported by the auth provider.
//
// The application only ever holds a read-only copy: the provider creates
// and destroys identities, and the session manager observes the transitions.
type Identity struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
}

// Avatar returns the identity's picture, or the default avatar.
func (i *Identity) Avatar() string {
	if i == nil || i.AvatarURL == "" {
		return DefaultAvatarURL
	}
	return i.AvatarURL
}

// SameAs reports whether both identities refer to the same account.
// Two nil identities are the same; nil and non-nil are not.
func (i *Identity) SameAs(other *Identity) bool {
	if i == nil || other == nil {
		return i == nil && other == nil
	}
	return i.ID == other.ID
}
