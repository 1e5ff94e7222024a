package model

import "time"

type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
)

// Friendship 好友关系。PairKey 对无序用户对唯一，防止 A→B 与 B→A 同时存在。
type Friendship struct {
	ID          string           `gorm:"primaryKey;type:varchar(64)" json:"id"`
	RequesterID string           `gorm:"index;not null;type:varchar(64)" json:"requester_id"`
	AddresseeID string           `gorm:"index;not null;type:varchar(64)" json:"addressee_id"`
	PairKey     string           `gorm:"uniqueIndex;not null;type:varchar(130)" json:"-"`
	Status      FriendshipStatus `gorm:"not null;type:varchar(16)" json:"status"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Friendship) TableName() string {
	return "friendships"
}

// PairKey orders the two user IDs so both directions share one key.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// Other returns the party of the friendship that is not userID.
func (f *Friendship) Other(userID string) string {
	if f.RequesterID == userID {
		return f.AddresseeID
	}
	return f.RequesterID
}

func (f *Friendship) Involves(userID string) bool {
	return f.RequesterID == userID || f.AddresseeID == userID
}

// Validate checks a stored friendship row.
func (f *Friendship) Validate() error {
	switch {
	case f.ID == "":
		return malformed("friendships", f.ID, "missing id")
	case f.RequesterID == "" || f.AddresseeID == "":
		return malformed("friendships", f.ID, "missing party")
	case f.Status != FriendshipPending && f.Status != FriendshipAccepted:
		return malformed("friendships", f.ID, "unknown status "+string(f.Status))
	}
	return nil
}

// FriendStatus describes a relationship from one user's point of view.
type FriendStatus string

const (
	FriendStatusNone            FriendStatus = "none"
	FriendStatusPendingSent     FriendStatus = "pending_sent"
	FriendStatusPendingReceived FriendStatus = "pending_received"
	FriendStatusFriends         FriendStatus = "friends"
)

// StatusFor derives the relationship as seen by viewer. A nil friendship means none.
func (f *Friendship) StatusFor(viewer string) FriendStatus {
	switch {
	case f == nil:
		return FriendStatusNone
	case f.Status == FriendshipAccepted:
		return FriendStatusFriends
	case f.RequesterID == viewer:
		return FriendStatusPendingSent
	default:
		return FriendStatusPendingReceived
	}
}
