package model

import "sort"

// AttachmentGraph is a read-only view of carrier to cargo relationships
// built from a snapshot of unit rows.
type AttachmentGraph struct {
	units    map[UnitID]*Unit
	children map[UnitID][]UnitID
}

// BuildAttachmentGraph indexes units by id and by carrier
func BuildAttachmentGraph(units []*Unit) *AttachmentGraph {
	g := &AttachmentGraph{
		units:    make(map[UnitID]*Unit, len(units)),
		children: make(map[UnitID][]UnitID),
	}
	for _, u := range units {
		g.units[u.ID] = u
	}
	for _, u := range units {
		if u.IsAttached() {
			g.children[*u.AttachedTo] = append(g.children[*u.AttachedTo], u.ID)
		}
	}
	for _, ids := range g.children {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	return g
}

// Unit returns the unit with the given id, or nil
func (g *AttachmentGraph) Unit(id UnitID) *Unit {
	return g.units[id]
}

// Children returns the ids of units attached to the carrier
func (g *AttachmentGraph) Children(carrier UnitID) []UnitID {
	return g.children[carrier]
}

// IsCarrier reports whether any unit is attached to id
func (g *AttachmentGraph) IsCarrier(id UnitID) bool {
	return len(g.children[id]) > 0
}

// ValidateTarget checks that unit may be attached to target.
// Attachment is one level deep: a target must be a free, active unit of the
// same match and slot, and the unit being attached must not carry cargo.
// A knocked out unit keeps its attachment until revived, so the scoring
// eligibility its KO was judged on still holds when it comes back.
func (g *AttachmentGraph) ValidateTarget(unitID, targetID UnitID) error {
	unit := g.units[unitID]
	if unit == nil {
		return ErrUnitNotFound
	}
	if unitID == targetID {
		return ErrTargetSelf
	}
	target := g.units[targetID]
	if target == nil {
		return ErrTargetMissing
	}
	if target.MatchID != unit.MatchID || target.Slot != unit.Slot {
		return ErrTargetSlot
	}
	if target.IsAttached() {
		return ErrTargetAttached
	}
	if target.IsSideline {
		return ErrTargetSideline
	}
	if g.IsCarrier(unitID) {
		return ErrUnitIsCarrier
	}
	if unit.IsKO {
		return ErrUnitKnockedOut
	}
	return nil
}
