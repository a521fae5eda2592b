package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcoot/matchsync/internal/model"
)

func unitRef(id model.UnitID) *model.UnitID { return &id }

func TestCheckAttachment(t *testing.T) {
	stored := []*model.Unit{
		{ID: "a", MatchID: "m", Slot: model.SlotOne, Points: 50},
		{ID: "b", MatchID: "m", Slot: model.SlotOne, Points: 80, AttachedTo: unitRef("a")},
		{ID: "c", MatchID: "m", Slot: model.SlotOne, Points: 100},
		{ID: "d", MatchID: "m", Slot: model.SlotOne, Points: 20, IsKO: true, AttachedTo: unitRef("e")},
		{ID: "e", MatchID: "m", Slot: model.SlotOne, Points: 60},
	}

	tests := []struct {
		name string
		row  *model.Unit
		err  error
	}{
		{
			name: "free onto free",
			row:  &model.Unit{ID: "c", MatchID: "m", Slot: model.SlotOne, AttachedTo: unitRef("a")},
		},
		{
			name: "closing a cycle",
			row:  &model.Unit{ID: "a", MatchID: "m", Slot: model.SlotOne, AttachedTo: unitRef("b")},
			err:  model.ErrTargetAttached,
		},
		{
			name: "carrier onto another unit",
			row:  &model.Unit{ID: "a", MatchID: "m", Slot: model.SlotOne, AttachedTo: unitRef("c")},
			err:  model.ErrUnitIsCarrier,
		},
		{
			name: "new unit onto cargo",
			row:  &model.Unit{ID: "f", MatchID: "m", Slot: model.SlotOne, AttachedTo: unitRef("b")},
			err:  model.ErrTargetAttached,
		},
		{
			name: "knocked out cargo moved",
			row:  &model.Unit{ID: "d", MatchID: "m", Slot: model.SlotOne, IsKO: true, AttachedTo: unitRef("c")},
			err:  model.ErrUnitKnockedOut,
		},
		{
			name: "knocked out cargo detached",
			row:  &model.Unit{ID: "d", MatchID: "m", Slot: model.SlotOne, IsKO: true},
			err:  model.ErrUnitKnockedOut,
		},
		{
			name: "knocked out cargo unchanged",
			row:  &model.Unit{ID: "d", MatchID: "m", Slot: model.SlotOne, IsKO: true, AttachedTo: unitRef("e")},
		},
		{
			name: "detach",
			row:  &model.Unit{ID: "b", MatchID: "m", Slot: model.SlotOne},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckAttachment(stored, tt.row)
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
			assert.ErrorIs(t, err, model.ErrInvalidTarget)
		})
	}
}
