package bootstrap

import (
	"errors"

	"github.com/code-100-precent/LingDial/internal/models"
	"gorm.io/gorm"
)

type SeedService struct {
	db *gorm.DB
}

func (s *SeedService) SeedAll() error {
	if err := s.seedContacts(); err != nil {
		return err
	}

	return nil
}

// seedContacts writes a few well-known extensions so the dial pad is
// usable out of the box. Existing entries are left alone.
func (s *SeedService) seedContacts() error {
	defaults := []models.Contact{
		{Name: "Echo Test", SipURI: "sip:echo@pbx.local", Notes: "Loops your audio back, useful for checking the media path"},
		{Name: "Front Desk", SipURI: "sip:100@pbx.local", PhoneNumber: "100"},
		{Name: "Conference Room", SipURI: "sip:200@pbx.local", PhoneNumber: "200"},
	}

	for _, contact := range defaults {
		_, err := models.GetContactBySipURI(s.db, contact.SipURI)
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		c := contact
		if err := models.CreateContact(s.db, &c); err != nil {
			return err
		}
	}
	return nil
}
