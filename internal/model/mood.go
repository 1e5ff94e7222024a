package model

import "time"

type Mood string

const (
	MoodGood    Mood = "good"
	MoodNeutral Mood = "neutral"
	MoodBad     Mood = "bad"
)

func (m Mood) Valid() bool {
	return m == MoodGood || m == MoodNeutral || m == MoodBad
}

// DateLayout is the calendar-day format of MoodLog.Date.
const DateLayout = "2006-01-02"

// MoodLog 每个用户每天一条心情记录，重复记录覆盖当天的数据。
type MoodLog struct {
	ID         string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID     string     `gorm:"uniqueIndex:idx_mood_user_date,priority:1;not null;type:varchar(64)" json:"user_id"`
	Date       string     `gorm:"uniqueIndex:idx_mood_user_date,priority:2;not null;type:char(10)" json:"date"`
	Mood       Mood       `gorm:"not null;type:varchar(16)" json:"mood"`
	Note       string     `gorm:"type:text" json:"note"`
	Visibility Visibility `gorm:"not null;type:varchar(16);default:private" json:"visibility"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (MoodLog) TableName() string {
	return "mood_logs"
}

func ValidateMoodNote(note string) error {
	return checkLength("note", note, 0, 500)
}

// Validate checks a stored mood row.
func (m *MoodLog) Validate() error {
	switch {
	case m.ID == "" || m.UserID == "":
		return malformed("mood_logs", m.ID, "missing key")
	case !m.Mood.Valid():
		return malformed("mood_logs", m.ID, "unknown mood "+string(m.Mood))
	case !m.Visibility.Valid():
		return malformed("mood_logs", m.ID, "unknown visibility "+string(m.Visibility))
	}
	if _, err := time.Parse(DateLayout, m.Date); err != nil {
		return malformed("mood_logs", m.ID, "bad date "+m.Date)
	}
	return nil
}
