package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"pgregory.net/rapid"

	"github.com/Gopher0727/MindBridge/internal/model"
	"github.com/Gopher0727/MindBridge/internal/repository/memory"
)

// expectedOutcomes are the answers a ledger call may give to a valid but
// possibly unlucky request. Anything else is a bug.
var expectedOutcomes = []error{
	ErrNotAuthorized,
	ErrAlreadyMember,
	ErrMembershipNotFound,
	ErrCannotRemoveSelf,
	ErrCannotDemoteSelf,
}

func expected(err error) bool {
	if err == nil {
		return true
	}
	for _, e := range expectedOutcomes {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// TestProperty_MemberCountMatchesActiveMemberships drives random sequences of
// ledger calls and checks the cached counter after every step.
func TestProperty_MemberCountMatchesActiveMemberships(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		store := memory.NewStore()
		svc := NewCircleService(store.Circles(), store.Memberships(), nil, NoRetry, nil)

		users := []string{"u0", "u1", "u2", "u3", "u4"}
		var circleIDs []string
		for i, vis := range []model.Visibility{model.VisibilityPublic, model.VisibilityPrivate} {
			owner := rapid.SampledFrom(users).Draw(rt, fmt.Sprintf("owner_%d", i))
			c, err := svc.CreateCircle(ctx, owner, &CreateCircleRequest{
				Name:        fmt.Sprintf("circle %d", i),
				Description: "generated circle for testing",
				Visibility:  vis,
			})
			if err != nil {
				rt.Fatalf("create circle: %v", err)
			}
			circleIDs = append(circleIDs, c.ID)
		}

		ops := []string{"join", "leave", "approve", "reject", "remove", "promote", "demote"}
		steps := rapid.IntRange(1, 60).Draw(rt, "steps")
		for i := range steps {
			op := rapid.SampledFrom(ops).Draw(rt, fmt.Sprintf("op_%d", i))
			circleID := rapid.SampledFrom(circleIDs).Draw(rt, fmt.Sprintf("circle_%d", i))
			actor := rapid.SampledFrom(users).Draw(rt, fmt.Sprintf("actor_%d", i))
			target := rapid.SampledFrom(users).Draw(rt, fmt.Sprintf("target_%d", i))

			var err error
			switch op {
			case "join":
				_, err = svc.RequestJoin(ctx, actor, circleID)
			case "leave":
				err = svc.Leave(ctx, actor, circleID)
			case "approve":
				err = svc.ApproveJoin(ctx, actor, circleID, target)
			case "reject":
				err = svc.RejectJoin(ctx, actor, circleID, target)
			case "remove":
				err = svc.RemoveMember(ctx, actor, circleID, target)
			case "promote":
				err = svc.SetRole(ctx, actor, circleID, target, model.RoleAdmin)
			case "demote":
				err = svc.SetRole(ctx, actor, circleID, target, model.RoleMember)
			}
			if !expected(err) {
				rt.Fatalf("%s by %s on %s: unexpected error %v", op, actor, target, err)
			}

			for _, id := range circleIDs {
				c, err := store.Circles().FindByID(ctx, id)
				if err != nil {
					rt.Fatalf("find circle: %v", err)
				}
				active, err := store.Memberships().CountActive(ctx, id)
				if err != nil {
					rt.Fatalf("count active: %v", err)
				}
				if int64(c.MemberCount) != active {
					rt.Fatalf("after %s: member_count %d, active memberships %d", op, c.MemberCount, active)
				}
			}
		}
	})
}

func genVisibility() gopter.Gen {
	return gen.OneConstOf(model.VisibilityPublic, model.VisibilityPrivate)
}

// standings indexes every membership shape a user can hold, nil for none.
var standings = []*model.Membership{
	nil,
	{Role: model.RoleMember, Status: model.StatusPending},
	{Role: model.RoleMember, Status: model.StatusActive},
	{Role: model.RoleAdmin, Status: model.StatusPending},
	{Role: model.RoleAdmin, Status: model.StatusActive},
}

func genStanding() gopter.Gen {
	return gen.IntRange(0, len(standings)-1)
}

func rank(m *model.Membership) int {
	switch {
	case m.IsAdmin():
		return 2
	case m.IsActive():
		return 1
	}
	return 0
}

func TestProperty_CapabilitiesMonotoneInStanding(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("a higher standing grants every capability of a lower one",
		prop.ForAll(
			func(vis model.Visibility, i, j int) bool {
				a, b := standings[i], standings[j]
				circle := &model.Circle{ID: "c", Visibility: vis}
				ca, cb := DeriveCapabilities(circle, a), DeriveCapabilities(circle, b)
				if rank(a) >= rank(b) {
					return ca.Contains(cb)
				}
				return cb.Contains(ca)
			},
			genVisibility(),
			genStanding(),
			genStanding(),
		))

	properties.Property("managing members implies being able to view, post and comment",
		prop.ForAll(
			func(vis model.Visibility, i int) bool {
				m := standings[i]
				caps := DeriveCapabilities(&model.Circle{ID: "c", Visibility: vis}, m)
				if !caps.Has(CapManageMembers) {
					return true
				}
				return caps.Has(CapView) && caps.Has(CapPost) && caps.Has(CapComment) && caps.Has(CapModerate)
			},
			genVisibility(),
			genStanding(),
		))

	properties.Property("private circles are invisible without an active membership",
		prop.ForAll(
			func(i int) bool {
				m := standings[i]
				caps := DeriveCapabilities(&model.Circle{ID: "c", Visibility: model.VisibilityPrivate}, m)
				return caps.Has(CapView) == m.IsActive()
			},
			genStanding(),
		))

	properties.TestingRun(t)
}
