package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mwarrick/digital-business-card-sub000/internal/models"
)

// FlexID decodes an identifier the server may send either as a JSON
// string or as a bare number. It always encodes as a string.
type FlexID string

func (id *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		*id = FlexID(s)

		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}

	*id = FlexID(n.String())

	return nil
}

// FlexBool decodes true/false, 0/1 and "0"/"1".
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(bytes.TrimSpace(data)), `"`) {
	case "true", "1":
		*b = true
	case "false", "0", "", "null":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}

	return nil
}

// RemoteEmail is the wire form of models.Email.
type RemoteEmail struct {
	Email     string   `json:"email"`
	Type      string   `json:"type"`
	Label     string   `json:"label,omitempty"`
	IsPrimary FlexBool `json:"is_primary"`
}

// RemotePhone is the wire form of models.Phone.
type RemotePhone struct {
	PhoneNumber string `json:"phone_number"`
	Type        string `json:"type"`
	Label       string `json:"label,omitempty"`
}

// RemoteWebsite is the wire form of models.Website.
type RemoteWebsite struct {
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	Description string   `json:"description,omitempty"`
	IsPrimary   FlexBool `json:"is_primary"`
}

// RemoteAddress is the wire form of models.Address.
type RemoteAddress struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
	Country string `json:"country"`
}

// RemoteCard is a card as exchanged with /api/cards/. Timestamps are
// server-formatted strings (models.ServerTimeLayout).
type RemoteCard struct {
	ID               FlexID          `json:"id,omitempty"`
	FirstName        string          `json:"first_name"`
	LastName         string          `json:"last_name"`
	PhoneNumber      string          `json:"phone_number"`
	CompanyName      string          `json:"company_name"`
	JobTitle         string          `json:"job_title"`
	Bio              string          `json:"bio"`
	ProfilePhotoPath string          `json:"profile_photo_path,omitempty"`
	CompanyLogoPath  string          `json:"company_logo_path,omitempty"`
	CoverGraphicPath string          `json:"cover_graphic_path,omitempty"`
	IsActive         FlexBool        `json:"is_active"`
	CreatedAt        string          `json:"created_at,omitempty"`
	UpdatedAt        string          `json:"updated_at,omitempty"`
	Emails           []RemoteEmail   `json:"emails"`
	Phones           []RemotePhone   `json:"phones"`
	Websites         []RemoteWebsite `json:"websites"`
	Address          *RemoteAddress  `json:"address,omitempty"`
}

// ToRecord converts the wire card into a CardRecord with no local
// identity. Unparseable timestamps are left zero.
func (r RemoteCard) ToRecord() models.CardRecord {
	c := models.CardRecord{
		RemoteID:  string(r.ID),
		IsActive:  bool(r.IsActive),
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Phone:     r.PhoneNumber,
		Company:   r.CompanyName,
		JobTitle:  r.JobTitle,
		Bio:       r.Bio,
		Profile:   models.ImageRef{Path: r.ProfilePhotoPath},
		Logo:      models.ImageRef{Path: r.CompanyLogoPath},
		Cover:     models.ImageRef{Path: r.CoverGraphicPath},
	}

	if t, ok := models.ParseServerTime(r.CreatedAt); ok {
		c.CreatedAt = t
	}

	if t, ok := models.ParseServerTime(r.UpdatedAt); ok {
		c.UpdatedAt = t
	}

	for _, e := range r.Emails {
		c.Emails = append(c.Emails, models.Email{Email: e.Email, Kind: e.Type, Label: e.Label, IsPrimary: bool(e.IsPrimary)})
	}

	for _, p := range r.Phones {
		c.Phones = append(c.Phones, models.Phone{Number: p.PhoneNumber, Kind: p.Type, Label: p.Label})
	}

	for _, w := range r.Websites {
		c.Websites = append(c.Websites, models.Website{Name: w.Name, URL: w.URL, Description: w.Description, IsPrimary: bool(w.IsPrimary)})
	}

	if r.Address != nil {
		c.Address = &models.Address{
			Street:  r.Address.Street,
			City:    r.Address.City,
			State:   r.Address.State,
			Zip:     r.Address.ZipCode,
			Country: r.Address.Country,
		}
	}

	return c
}

// CardFromRecord converts a local card into its wire form. Child
// collections are always sent in full.
func CardFromRecord(c models.CardRecord) RemoteCard {
	r := RemoteCard{
		ID:               FlexID(c.RemoteID),
		FirstName:        c.FirstName,
		LastName:         c.LastName,
		PhoneNumber:      c.Phone,
		CompanyName:      c.Company,
		JobTitle:         c.JobTitle,
		Bio:              c.Bio,
		ProfilePhotoPath: c.Profile.Path,
		CompanyLogoPath:  c.Logo.Path,
		CoverGraphicPath: c.Cover.Path,
		IsActive:         FlexBool(c.IsActive),
		CreatedAt:        models.FormatServerTime(c.CreatedAt),
		UpdatedAt:        models.FormatServerTime(c.UpdatedAt),
		Emails:           []RemoteEmail{},
		Phones:           []RemotePhone{},
		Websites:         []RemoteWebsite{},
	}

	for _, e := range c.Emails {
		r.Emails = append(r.Emails, RemoteEmail{Email: e.Email, Type: e.Kind, Label: e.Label, IsPrimary: FlexBool(e.IsPrimary)})
	}

	for _, p := range c.Phones {
		r.Phones = append(r.Phones, RemotePhone{PhoneNumber: p.Number, Type: p.Kind, Label: p.Label})
	}

	for _, w := range c.Websites {
		r.Websites = append(r.Websites, RemoteWebsite{Name: w.Name, URL: w.URL, Description: w.Description, IsPrimary: FlexBool(w.IsPrimary)})
	}

	if c.Address != nil {
		r.Address = &RemoteAddress{
			Street:  c.Address.Street,
			City:    c.Address.City,
			State:   c.Address.State,
			ZipCode: c.Address.Zip,
			Country: c.Address.Country,
		}
	}

	return r
}

// RemoteContact is a contact or lead as returned by the pull-only
// endpoints.
type RemoteContact struct {
	ID          FlexID `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email_primary"`
	Phone       string `json:"work_phone"`
	CompanyName string `json:"organization_name"`
	JobTitle    string `json:"job_title"`
	Notes       string `json:"notes"`
	Source      string `json:"source"`
	UpdatedAt   string `json:"updated_at"`
}

// ToRecord converts the wire contact into a ContactRecord of kind.
func (r RemoteContact) ToRecord(kind models.ContactKind) models.ContactRecord {
	rec := models.ContactRecord{
		RemoteID:  string(r.ID),
		Kind:      kind,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		Phone:     r.Phone,
		Company:   r.CompanyName,
		JobTitle:  r.JobTitle,
		Notes:     r.Notes,
		Source:    r.Source,
	}

	if t, ok := models.ParseServerTime(r.UpdatedAt); ok {
		rec.UpdatedAt = t
	}

	return rec
}

// mediaTypes maps image slots to the server's media_type form value.
var mediaTypes = map[models.ImageSlot]string{
	models.SlotProfile: "profile_photo",
	models.SlotLogo:    "company_logo",
	models.SlotCover:   "cover_graphic",
}
