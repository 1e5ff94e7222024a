package model

import "time"

type JournalVisibility string

const (
	JournalPrivate JournalVisibility = "private"
	JournalCircle  JournalVisibility = "circle"
	JournalPublic  JournalVisibility = "public"
)

func (v JournalVisibility) Valid() bool {
	return v == JournalPrivate || v == JournalCircle || v == JournalPublic
}

// JournalEntry 日记。circle 可见性表示与作者同在至少一个圈子的活跃成员可读。
type JournalEntry struct {
	ID         string            `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID     string            `gorm:"index;not null;type:varchar(64)" json:"user_id"`
	Title      string            `gorm:"not null;type:varchar(128)" json:"title"`
	Body       string            `gorm:"not null;type:text" json:"body"`
	Visibility JournalVisibility `gorm:"not null;type:varchar(16);default:private" json:"visibility"`

	CreatedAt time.Time `gorm:"index;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (JournalEntry) TableName() string {
	return "journal_entries"
}

func ValidateJournalFields(title, body string) error {
	if err := checkLength("title", title, 1, 100); err != nil {
		return err
	}
	return checkLength("body", body, 1, 10000)
}

// Validate checks a stored journal row.
func (j *JournalEntry) Validate() error {
	switch {
	case j.ID == "" || j.UserID == "":
		return malformed("journal_entries", j.ID, "missing key")
	case !j.Visibility.Valid():
		return malformed("journal_entries", j.ID, "unknown visibility "+string(j.Visibility))
	}
	return nil
}
