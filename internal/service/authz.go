package service

import (
	"context"

	"github.com/bits-and-blooms/bitset"

	"github.com/Gopher0727/MindBridge/internal/model"
	"github.com/Gopher0727/MindBridge/internal/repository"
)

// Capability is one thing a user may do in a circle.
type Capability uint

const (
	CapView Capability = iota
	CapPost
	CapComment
	CapModerate
	CapManageMembers

	capabilityCount
)

var capabilityNames = [capabilityCount]string{
	CapView:          "view",
	CapPost:          "post",
	CapComment:       "comment",
	CapModerate:      "moderate",
	CapManageMembers: "manage_members",
}

func (c Capability) String() string {
	if c < capabilityCount {
		return capabilityNames[c]
	}
	return "unknown"
}

// Capabilities is the set of capabilities a user holds in one circle.
type Capabilities struct {
	set *bitset.BitSet
}

func newCapabilities(caps ...Capability) Capabilities {
	set := bitset.New(uint(capabilityCount))
	for _, c := range caps {
		set.Set(uint(c))
	}
	return Capabilities{set: set}
}

// DeriveCapabilities computes what the holder of m may do in circle. A nil
// membership stands for an outsider.
//
// 公开圈子任何人可读；私密圈子只有活跃成员可读。发帖和评论要求活跃成员，
// 管理权限要求活跃管理员。
func DeriveCapabilities(circle *model.Circle, m *model.Membership) Capabilities {
	caps := newCapabilities()
	if circle.Visibility == model.VisibilityPublic || m.IsActive() {
		caps.set.Set(uint(CapView))
	}
	if m.IsActive() {
		caps.set.Set(uint(CapPost)).Set(uint(CapComment))
	}
	if m.IsAdmin() {
		caps.set.Set(uint(CapModerate)).Set(uint(CapManageMembers))
	}
	return caps
}

func (c Capabilities) Has(capability Capability) bool {
	return c.set != nil && c.set.Test(uint(capability))
}

// Contains reports whether c grants everything other grants.
func (c Capabilities) Contains(other Capabilities) bool {
	if other.set == nil {
		return true
	}
	if c.set == nil {
		return other.set.None()
	}
	return c.set.IsSuperSet(other.set)
}

func (c Capabilities) Len() int {
	if c.set == nil {
		return 0
	}
	return int(c.set.Count())
}

// Names lists the held capabilities in declaration order.
func (c Capabilities) Names() []string {
	names := make([]string, 0, c.Len())
	if c.set == nil {
		return names
	}
	for i, ok := c.set.NextSet(0); ok; i, ok = c.set.NextSet(i + 1) {
		names = append(names, Capability(i).String())
	}
	return names
}

// Permissions is a user's standing in a circle.
type Permissions struct {
	CircleID     string   `json:"circle_id"`
	UserID       string   `json:"user_id"`
	Member       bool     `json:"member"`
	Admin        bool     `json:"admin"`
	Pending      bool     `json:"pending"`
	Capabilities []string `json:"capabilities"`

	caps Capabilities
}

func (p *Permissions) Can(capability Capability) bool {
	return p.caps.Has(capability)
}

func newPermissions(circle *model.Circle, userID string, m *model.Membership) *Permissions {
	caps := DeriveCapabilities(circle, m)
	return &Permissions{
		CircleID:     circle.ID,
		UserID:       userID,
		Member:       m.IsActive(),
		Admin:        m.IsAdmin(),
		Pending:      m.IsPending(),
		Capabilities: caps.Names(),
		caps:         caps,
	}
}

// ledger answers membership questions against the row store. Every lookup
// goes through the retry policy; a failed lookup is a store failure and
// never turns into a denial.
type ledger struct {
	circles     repository.ICircleRepository
	memberships repository.IMembershipRepository
	retry       RetryPolicy
}

func (l *ledger) circle(ctx context.Context, circleID string) (*model.Circle, error) {
	c, err := retryValue(ctx, l.retry, func(ctx context.Context) (*model.Circle, error) {
		return l.circles.FindByID(ctx, circleID)
	})
	if err != nil {
		return nil, lookupError("find circle", err, ErrCircleNotFound)
	}
	return c, nil
}

// membership returns nil without error when userID holds no row in the circle.
func (l *ledger) membership(ctx context.Context, circleID, userID string) (*model.Membership, error) {
	if userID == "" {
		return nil, nil
	}
	m, err := retryValue(ctx, l.retry, func(ctx context.Context) (*model.Membership, error) {
		return l.memberships.Find(ctx, circleID, userID)
	})
	if err != nil {
		if err = lookupError("find membership", err, ErrMembershipNotFound); err == ErrMembershipNotFound {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

func (l *ledger) permissions(ctx context.Context, circleID, userID string) (*model.Circle, *Permissions, error) {
	circle, err := l.circle(ctx, circleID)
	if err != nil {
		return nil, nil, err
	}
	m, err := l.membership(ctx, circleID, userID)
	if err != nil {
		return nil, nil, err
	}
	return circle, newPermissions(circle, userID, m), nil
}

// require loads the circle and checks that userID holds capability in it.
func (l *ledger) require(ctx context.Context, circleID, userID string, capability Capability) (*model.Circle, error) {
	circle, perms, err := l.permissions(ctx, circleID, userID)
	if err != nil {
		return nil, err
	}
	if !perms.Can(capability) {
		return nil, ErrNotAuthorized
	}
	return circle, nil
}

func (l *ledger) requireAdmin(ctx context.Context, circleID, actingUser string) (*model.Circle, error) {
	if actingUser == "" {
		return nil, ErrUnauthenticated
	}
	return l.require(ctx, circleID, actingUser, CapManageMembers)
}

func (l *ledger) isAdmin(ctx context.Context, circleID, userID string) (bool, error) {
	m, err := l.membership(ctx, circleID, userID)
	if err != nil {
		return false, err
	}
	return m.IsAdmin(), nil
}
