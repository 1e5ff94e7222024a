package model

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

type MembershipStatus string

const (
	StatusActive  MembershipStatus = "active"
	StatusPending MembershipStatus = "pending"
)

func (s MembershipStatus) Valid() bool {
	return s == StatusActive || s == StatusPending
}

// InitialStatus is the status a fresh join request gets in a circle of the
// given visibility.
func InitialStatus(v Visibility) MembershipStatus {
	if v == VisibilityPrivate {
		return StatusPending
	}
	return StatusActive
}

const MaxTags = 10

// Circle 讨论圈。MemberCount 是活跃成员数的缓存，只通过存储层的原子增减修改。
type Circle struct {
	ID          string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name        string         `gorm:"not null;type:varchar(64)" json:"name"`
	Description string         `gorm:"not null;type:text" json:"description"`
	Tags        pq.StringArray `gorm:"type:text[]" json:"tags"`
	Visibility  Visibility     `gorm:"not null;type:varchar(16);default:public" json:"visibility"`
	CreatedBy   string         `gorm:"index;not null;type:varchar(64)" json:"created_by"`
	MemberCount int            `gorm:"not null;default:0" json:"member_count"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Circle) TableName() string {
	return "circles"
}

// Validate checks a stored circle row.
func (c *Circle) Validate() error {
	switch {
	case c.ID == "":
		return malformed("circles", c.ID, "missing id")
	case c.CreatedBy == "":
		return malformed("circles", c.ID, "missing creator")
	case !c.Visibility.Valid():
		return malformed("circles", c.ID, "unknown visibility "+string(c.Visibility))
	case c.MemberCount < 0:
		return malformed("circles", c.ID, "negative member count")
	}
	return nil
}

// Membership 圈子成员关系，(circle_id, user_id) 联合主键保证每个用户在每个圈子最多一行。
type Membership struct {
	CircleID string           `gorm:"primaryKey;type:varchar(64)" json:"circle_id"`
	UserID   string           `gorm:"primaryKey;type:varchar(64);index" json:"user_id"`
	Role     Role             `gorm:"not null;type:varchar(16)" json:"role"`
	Status   MembershipStatus `gorm:"not null;type:varchar(16);index" json:"status"`

	JoinedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"joined_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Membership) TableName() string {
	return "circle_memberships"
}

func (m *Membership) IsActive() bool {
	return m != nil && m.Status == StatusActive
}

func (m *Membership) IsAdmin() bool {
	return m.IsActive() && m.Role == RoleAdmin
}

func (m *Membership) IsPending() bool {
	return m != nil && m.Status == StatusPending
}

// Validate checks a stored membership row.
func (m *Membership) Validate() error {
	key := m.CircleID + "/" + m.UserID
	switch {
	case m.CircleID == "" || m.UserID == "":
		return malformed("circle_memberships", key, "missing key")
	case !m.Role.Valid():
		return malformed("circle_memberships", key, "unknown role "+string(m.Role))
	case !m.Status.Valid():
		return malformed("circle_memberships", key, "unknown status "+string(m.Status))
	}
	return nil
}

// CircleUpdate carries the fields an admin may change. Nil fields are left as is.
type CircleUpdate struct {
	Name        *string     `json:"name"`
	Description *string     `json:"description"`
	Tags        []string    `json:"tags"`
	Visibility  *Visibility `json:"visibility"`
}

func (u *CircleUpdate) Empty() bool {
	return u.Name == nil && u.Description == nil && u.Tags == nil && u.Visibility == nil
}

// Normalize validates the update and trims its values in place.
func (u *CircleUpdate) Normalize() error {
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if err := ValidateCircleName(name); err != nil {
			return err
		}
		u.Name = &name
	}
	if u.Description != nil {
		desc := strings.TrimSpace(*u.Description)
		if err := ValidateCircleDescription(desc); err != nil {
			return err
		}
		u.Description = &desc
	}
	if u.Tags != nil {
		tags, err := NormalizeTags(u.Tags)
		if err != nil {
			return err
		}
		u.Tags = tags
	}
	if u.Visibility != nil && !u.Visibility.Valid() {
		return invalid("visibility", "must be public or private")
	}
	return nil
}

func ValidateCircleName(name string) error {
	return checkLength("name", name, 3, 50)
}

func ValidateCircleDescription(desc string) error {
	return checkLength("description", desc, 10, 500)
}

// NormalizeTags trims, lowercases and de-duplicates tags, keeping first-seen order.
func NormalizeTags(tags []string) (pq.StringArray, error) {
	out := make(pq.StringArray, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		if err := checkLength("tag", tag, 1, 30); err != nil {
			return nil, err
		}
		seen[tag] = true
		out = append(out, tag)
	}
	if len(out) > MaxTags {
		return nil, invalid("tags", "must contain at most 10 entries")
	}
	return out, nil
}
