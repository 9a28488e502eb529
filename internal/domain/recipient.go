package domain

// Recipient is one notification target produced by the resolver. The contact
// address is the identity key: recipients gathered from multiple sources are
// merged by address, first source wins for the display name. Recipient lists
// are built fresh per resolution and never cached across events.
type Recipient struct {
	ContactAddress string `json:"contact_address"`
	DisplayName    string `json:"display_name"`
	SubjectID      string `json:"subject_id,omitempty"`
}
