package models

import (
	"time"

	"github.com/google/uuid"
)

// ImageSlot names one of the three image references on a card.
type ImageSlot string

const (
	SlotProfile ImageSlot = "profile"
	SlotLogo    ImageSlot = "logo"
	SlotCover   ImageSlot = "cover"
)

// ImageSlots lists every slot in a stable order.
var ImageSlots = []ImageSlot{SlotProfile, SlotLogo, SlotCover}

// ParseImageSlot returns the slot with the given name.
func ParseImageSlot(s string) (ImageSlot, bool) {
	switch ImageSlot(s) {
	case SlotProfile, SlotLogo, SlotCover:
		return ImageSlot(s), true
	}

	return "", false
}

// ImageRef tracks one image slot. Path is the server-side reference.
// LocalFile is the on-device file the image was taken from; Dirty is set
// when that file changed after the last successful upload. Checksum is
// the hex SHA-256 of the content last uploaded from LocalFile.
type ImageRef struct {
	Path      string `json:"path,omitempty"`
	LocalFile string `json:"local_file,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
	Checksum  string `json:"checksum,omitempty"`
}

// Pending reports whether the slot has a local asset that the server
// does not have yet.
func (r ImageRef) Pending() bool {
	return r.LocalFile != "" && (r.Dirty || r.Path == "")
}

// Email is an owned child of a card.
type Email struct {
	Email     string `json:"email"`
	Kind      string `json:"kind"`
	Label     string `json:"label,omitempty"`
	IsPrimary bool   `json:"is_primary"`
}

// Phone is an owned child of a card.
type Phone struct {
	Number string `json:"number"`
	Kind   string `json:"kind"`
	Label  string `json:"label,omitempty"`
}

// Website is an owned child of a card.
type Website struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	IsPrimary   bool   `json:"is_primary"`
}

// Address is the optional postal address of a card.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// CardRecord is the unit of synchronization. Child collections are owned
// values with no identity of their own; they are always replaced as a
// whole together with the scalar fields.
type CardRecord struct {
	LocalID   string    `json:"local_id"`
	RemoteID  string    `json:"remote_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IsActive  bool      `json:"is_active"`

	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
	Company   string `json:"company,omitempty"`
	JobTitle  string `json:"job_title,omitempty"`
	Bio       string `json:"bio,omitempty"`

	Profile ImageRef `json:"profile"`
	Logo    ImageRef `json:"logo"`
	Cover   ImageRef `json:"cover"`

	Emails   []Email   `json:"emails,omitempty"`
	Phones   []Phone   `json:"phones,omitempty"`
	Websites []Website `json:"websites,omitempty"`
	Address  *Address  `json:"address,omitempty"`
}

// NewCard returns an active card with a fresh local identity.
func NewCard(now time.Time) CardRecord {
	now = now.UTC()

	return CardRecord{
		LocalID:   uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		IsActive:  true,
	}
}

// Touch records a mutation at now. UpdatedAt never moves backwards.
func (c *CardRecord) Touch(now time.Time) {
	now = now.UTC()
	if now.After(c.UpdatedAt) {
		c.UpdatedAt = now
	}
}

// Image returns the reference stored in slot.
func (c *CardRecord) Image(slot ImageSlot) ImageRef {
	switch slot {
	case SlotProfile:
		return c.Profile
	case SlotLogo:
		return c.Logo
	case SlotCover:
		return c.Cover
	}

	return ImageRef{}
}

// SetImage replaces the reference stored in slot.
func (c *CardRecord) SetImage(slot ImageSlot, ref ImageRef) {
	switch slot {
	case SlotProfile:
		c.Profile = ref
	case SlotLogo:
		c.Logo = ref
	case SlotCover:
		c.Cover = ref
	}
}

// HasPendingImages reports whether any slot still needs an upload.
func (c *CardRecord) HasPendingImages() bool {
	for _, slot := range ImageSlots {
		if c.Image(slot).Pending() {
			return true
		}
	}

	return false
}

// ReplaceContent overwrites every synchronized field of c with the values
// from src. Identity (LocalID, CreatedAt) and on-device image state are
// kept; remote image paths, scalars and all child collections are
// replaced wholesale.
func (c *CardRecord) ReplaceContent(src CardRecord) {
	c.RemoteID = src.RemoteID
	c.UpdatedAt = src.UpdatedAt
	c.IsActive = src.IsActive
	c.FirstName = src.FirstName
	c.LastName = src.LastName
	c.Phone = src.Phone
	c.Company = src.Company
	c.JobTitle = src.JobTitle
	c.Bio = src.Bio

	c.Profile.Path = src.Profile.Path
	c.Logo.Path = src.Logo.Path
	c.Cover.Path = src.Cover.Path

	c.Emails = append([]Email(nil), src.Emails...)
	c.Phones = append([]Phone(nil), src.Phones...)
	c.Websites = append([]Website(nil), src.Websites...)

	c.Address = nil
	if src.Address != nil {
		addr := *src.Address
		c.Address = &addr
	}
}

// Clone returns a deep copy of c.
func (c CardRecord) Clone() CardRecord {
	out := c
	out.Emails = append([]Email(nil), c.Emails...)
	out.Phones = append([]Phone(nil), c.Phones...)
	out.Websites = append([]Website(nil), c.Websites...)

	if c.Address != nil {
		addr := *c.Address
		out.Address = &addr
	}

	return out
}

// Newer reports whether c should win over other under last-write-wins:
// greater UpdatedAt, ties broken by greater CreatedAt.
func (c *CardRecord) Newer(other *CardRecord) bool {
	if !c.UpdatedAt.Equal(other.UpdatedAt) {
		return c.UpdatedAt.After(other.UpdatedAt)
	}

	return c.CreatedAt.After(other.CreatedAt)
}
