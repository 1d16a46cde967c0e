package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is the person a case belongs to and the recipient of its notifications
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never serialize password hash
	Name         string    `json:"name"`
	PhoneNumber  *string   `json:"phone_number,omitempty"`
	Language     string    `json:"preferred_language"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SMSNumber returns the trimmed phone number, or "" when none is on file
func (u *User) SMSNumber() string {
	if u.PhoneNumber == nil {
		return ""
	}
	return strings.TrimSpace(*u.PhoneNumber)
}

// UserPreferences controls which channels receive case notifications
type UserPreferences struct {
	UserID             uuid.UUID `json:"user_id"`
	EmailNotifications bool      `json:"email_notifications"`
	SMSNotifications   bool      `json:"sms_notifications"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// DefaultPreferences applies when a user has never saved preferences:
// email on, SMS off.
func DefaultPreferences(userID uuid.UUID) *UserPreferences {
	return &UserPreferences{UserID: userID, EmailNotifications: true}
}

// WantsEmail reports whether an email can be sent to u
func (p *UserPreferences) WantsEmail(u *User) bool {
	return p.EmailNotifications && u.Email != ""
}

// WantsSMS reports whether an SMS can be sent to u
func (p *UserPreferences) WantsSMS(u *User) bool {
	return p.SMSNotifications && u.SMSNumber() != ""
}
