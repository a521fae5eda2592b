package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ref(id UnitID) *UnitID { return &id }

func graphFixture() *AttachmentGraph {
	return BuildAttachmentGraph([]*Unit{
		{ID: "carrier", MatchID: "m", Slot: SlotOne, Points: 100},
		{ID: "cargo-b", MatchID: "m", Slot: SlotOne, Points: 10, AttachedTo: ref("carrier")},
		{ID: "cargo-a", MatchID: "m", Slot: SlotOne, Points: 10, AttachedTo: ref("carrier")},
		{ID: "free", MatchID: "m", Slot: SlotOne, Points: 50},
		{ID: "bench", MatchID: "m", Slot: SlotOne, Points: 40, IsSideline: true},
		{ID: "downed", MatchID: "m", Slot: SlotOne, Points: 30, IsKO: true},
		{ID: "theirs", MatchID: "m", Slot: SlotTwo, Points: 60},
		{ID: "elsewhere", MatchID: "other", Slot: SlotOne, Points: 60},
	})
}

func TestAttachmentGraph_Children(t *testing.T) {
	g := graphFixture()

	assert.Equal(t, []UnitID{"cargo-a", "cargo-b"}, g.Children("carrier"))
	assert.Empty(t, g.Children("free"))
	assert.True(t, g.IsCarrier("carrier"))
	assert.False(t, g.IsCarrier("cargo-a"))
	require.NotNil(t, g.Unit("free"))
	assert.Nil(t, g.Unit("missing"))
}

func TestAttachmentGraph_ValidateTarget(t *testing.T) {
	tests := []struct {
		name   string
		unit   UnitID
		target UnitID
		err    error
	}{
		{name: "other slot", unit: "free", target: "theirs", err: ErrTargetSlot},
		{name: "valid target", unit: "bench", target: "free", err: nil},
		{name: "second cargo onto carrier", unit: "free", target: "carrier", err: nil},
		{name: "unit missing", unit: "missing", target: "free", err: ErrUnitNotFound},
		{name: "target missing", unit: "free", target: "missing", err: ErrTargetMissing},
		{name: "self", unit: "free", target: "free", err: ErrTargetSelf},
		{name: "other match", unit: "free", target: "elsewhere", err: ErrTargetSlot},
		{name: "target is attached", unit: "free", target: "cargo-a", err: ErrTargetAttached},
		{name: "target is sidelined", unit: "free", target: "bench", err: ErrTargetSideline},
		{name: "carrier cannot become cargo", unit: "carrier", target: "free", err: ErrUnitIsCarrier},
		{name: "knocked out unit keeps its place", unit: "downed", target: "free", err: ErrUnitKnockedOut},
		{name: "knocked out target", unit: "free", target: "downed", err: nil},
	}

	g := graphFixture()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.ValidateTarget(tt.unit, tt.target)
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestAttachmentGraph_TargetErrorsAreInvalidTarget(t *testing.T) {
	g := graphFixture()
	for _, target := range []UnitID{"missing", "theirs", "cargo-a", "bench", "free"} {
		err := g.ValidateTarget("free", target)
		assert.ErrorIs(t, err, ErrInvalidTarget, target)
	}
}

func TestAttachmentGraph_DepthNeverExceedsOne(t *testing.T) {
	g := graphFixture()
	// Anything accepted as a target must itself be free
	for _, u := range []UnitID{"carrier", "cargo-a", "cargo-b", "free", "bench", "theirs"} {
		for _, target := range []UnitID{"carrier", "cargo-a", "cargo-b", "free", "bench", "theirs"} {
			if g.ValidateTarget(u, target) == nil {
				assert.False(t, g.Unit(target).IsAttached(), "%s onto %s", u, target)
				assert.False(t, g.IsCarrier(u), "%s onto %s", u, target)
			}
		}
	}
}
