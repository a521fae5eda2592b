package model

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVictoryPointsFor(t *testing.T) {
	units := []*Unit{
		{ID: "a", Slot: SlotTwo, Points: 75, IsKO: true},
		{ID: "b", Slot: SlotTwo, Points: 25, IsKO: true},
		{ID: "c", Slot: SlotTwo, Points: 30},
		{ID: "d", Slot: SlotTwo, Points: 40, IsKO: true, IsSideline: true},
		{ID: "e", Slot: SlotTwo, Points: 10, IsKO: true, AttachedTo: ref("c")},
		{ID: "f", Slot: SlotOne, Points: 90, IsKO: true},
	}

	assert.Equal(t, 100, VictoryPointsFor(SlotOne, units))
	assert.Equal(t, 90, VictoryPointsFor(SlotTwo, units))
	assert.Zero(t, VictoryPointsFor(SlotOne, nil))
}

func TestTotalPointsFor(t *testing.T) {
	units := []*Unit{
		{ID: "a", Slot: SlotOne, Points: 75, IsKO: true},
		{ID: "b", Slot: SlotOne, Points: 25},
		{ID: "c", Slot: SlotOne, Points: 40, IsSideline: true},
		{ID: "d", Slot: SlotOne, Points: 10, AttachedTo: ref("b")},
		{ID: "e", Slot: SlotTwo, Points: 90},
	}

	assert.Equal(t, 100, TotalPointsFor(SlotOne, units))
	assert.Equal(t, 90, TotalPointsFor(SlotTwo, units))
}

// Sidelined and attached units never contribute to either ledger, whatever
// their KO state.
func TestIneligibleUnitsNeverScore(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 200; i++ {
		var units []*Unit
		for j := 0; j < 12; j++ {
			u := &Unit{
				ID:         UnitID(rune('a' + j)),
				Slot:       Slots[rng.IntN(2)],
				Points:     1 + rng.IntN(150),
				IsKO:       rng.IntN(2) == 0,
				IsSideline: rng.IntN(4) == 0,
			}
			if j > 0 && rng.IntN(4) == 0 {
				u.AttachedTo = ref(units[0].ID)
			}
			units = append(units, u)
		}

		var eligible []*Unit
		for _, u := range units {
			if !u.IsSideline && !u.IsAttached() {
				eligible = append(eligible, u)
			}
		}

		for _, slot := range Slots {
			assert.Equal(t, VictoryPointsFor(slot, eligible), VictoryPointsFor(slot, units))
			assert.Equal(t, TotalPointsFor(slot, eligible), TotalPointsFor(slot, units))
		}
	}
}
