package model

import (
	"regexp"
	"time"

	"github.com/lib/pq"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

// User 用户资料
type User struct {
	ID           string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Username     string         `gorm:"column:username;uniqueIndex;not null;type:varchar(32)" json:"username"`
	Email        string         `gorm:"uniqueIndex;not null;type:varchar(255)" json:"email"`
	PasswordHash string         `gorm:"not null;type:varchar(255)" json:"-"`
	DisplayName  string         `gorm:"type:varchar(64)" json:"display_name"`
	Bio          string         `gorm:"type:text" json:"bio"`
	AvatarURL    string         `json:"avatar_url"`
	Interests    pq.StringArray `gorm:"type:text[]" json:"interests"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return invalid("username", "must be 3-20 letters, digits or underscores")
	}
	return nil
}

func ValidateProfile(displayName, bio string, interests []string) error {
	if err := checkLength("display_name", displayName, 0, 64); err != nil {
		return err
	}
	if err := checkLength("bio", bio, 0, 500); err != nil {
		return err
	}
	if len(interests) > MaxTags {
		return invalid("interests", "must contain at most 10 entries")
	}
	return nil
}

// Validate checks a stored user row.
func (u *User) Validate() error {
	switch {
	case u.ID == "":
		return malformed("users", u.ID, "missing id")
	case u.Username == "":
		return malformed("users", u.ID, "missing username")
	case u.PasswordHash == "":
		return malformed("users", u.ID, "missing password hash")
	}
	return nil
}
