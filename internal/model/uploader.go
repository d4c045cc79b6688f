package model

const (
	NotAvailable = "Not Available"
	NotProvided  = "Not Provided"
	Unknown      = "Unknown"
)

// Candidate keys for each uploader field, highest priority first. Documents
// written by different versions of the post form used different keys, so
// each field is resolved from the first key that holds a non-empty string.
var (
	uploaderNameKeys     = []string{"uploaderName", "ownerName", "owner"}
	uploaderEmailKeys    = []string{"uploadedBy", "ownerEmail", "postedBy"}
	uploaderPhoneKeys    = []string{"ownerPhone", "contactNumber", "phone"}
	uploaderLinkedinKeys = []string{"ownerLinkedin", "linkedin"}
)

// UploaderDetails is what the project detail view shows about the poster.
type UploaderDetails struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Linkedin string `json:"linkedin"`
}

// HasLinkedin reports whether Linkedin holds a real value worth linking.
func (u UploaderDetails) HasLinkedin() bool {
	return u.Linkedin != "" && u.Linkedin != NotProvided
}

// ResolveUploader picks the uploader details out of a project record.
func ResolveUploader(record map[string]any) UploaderDetails {
	return UploaderDetails{
		Name:     FirstNonEmpty(NotAvailable, lookup(record, uploaderNameKeys)...),
		Email:    FirstNonEmpty(NotAvailable, lookup(record, uploaderEmailKeys)...),
		Phone:    FirstNonEmpty(NotProvided, lookup(record, uploaderPhoneKeys)...),
		Linkedin: FirstNonEmpty(NotProvided, lookup(record, uploaderLinkedinKeys)...),
	}
}

// UploadedBy is the short "Uploaded by" line on a project card.
func UploadedBy(record map[string]any) string {
	return FirstNonEmpty(Unknown, lookup(record, uploaderEmailKeys)...)
}

// FirstNonEmpty returns the first candidate that is not the empty string,
// or fallback when all are empty.
func FirstNonEmpty(fallback string, candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return fallback
}

// lookup returns the string values of keys in order. Missing keys and
// non-string values (a stored null, a number) come back as "".
func lookup(record map[string]any, keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		if s, ok := record[k].(string); ok {
			out[i] = s
		}
	}
	return out
}
