package model

import "time"

// DirectMessage 好友之间的私信
type DirectMessage struct {
	ID         string `gorm:"primaryKey;type:varchar(32)" json:"id"`
	SenderID   string `gorm:"index:idx_dm_pair,priority:1;not null;type:varchar(64)" json:"sender_id"`
	ReceiverID string `gorm:"index:idx_dm_pair,priority:2;index:idx_dm_unread,priority:1;not null;type:varchar(64)" json:"receiver_id"`
	Content    string `gorm:"not null;type:text" json:"content"`
	IsRead     bool   `gorm:"index:idx_dm_unread,priority:2;not null;default:false" json:"is_read"`

	CreatedAt time.Time `gorm:"index;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (DirectMessage) TableName() string {
	return "messages"
}

func ValidateMessageContent(content string) error {
	return checkLength("content", content, 1, 2000)
}

// Validate checks a stored message row.
func (m *DirectMessage) Validate() error {
	switch {
	case m.ID == "":
		return malformed("messages", m.ID, "missing id")
	case m.SenderID == "" || m.ReceiverID == "":
		return malformed("messages", m.ID, "missing party")
	}
	return nil
}
