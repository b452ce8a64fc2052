package models

import "time"

// ContactKind separates the two pull-only record families.
type ContactKind string

const (
	KindContact ContactKind = "contact"
	KindLead    ContactKind = "lead"
)

// ContactRecord is a contact or lead. The server is the sole source of
// truth for these; the local copy is replaced in full on every pull.
type ContactRecord struct {
	RemoteID  string      `json:"remote_id"`
	Kind      ContactKind `json:"kind"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Email     string      `json:"email,omitempty"`
	Phone     string      `json:"phone,omitempty"`
	Company   string      `json:"company,omitempty"`
	JobTitle  string      `json:"job_title,omitempty"`
	Notes     string      `json:"notes,omitempty"`
	Source    string      `json:"source,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}
