package replica

import (
	"time"

	"github.com/mcoot/matchsync/internal/model"
)

// SlotView is one side of the match as displayed
type SlotView struct {
	Slot          model.Slot
	Player        *model.MatchPlayer
	VictoryPoints int
	TotalPoints   int
	Units         []*model.Unit
}

// View is everything a participant's screen shows, derived from the held rows
type View struct {
	Match            *model.Match
	Deleted          bool
	Slots            []SlotView
	Spectators       []*model.Spectator
	RemainingSeconds int
	Role             model.Role
	Slot             model.Slot
}

// View derives the display state for viewer at now. Scores come from the
// ledger rows as stored, never from the units.
func (r *Replica) View(viewer model.ParticipantID, now time.Time) View {
	snap := r.Snapshot()
	view := View{
		Match:      snap.Match,
		Deleted:    r.Deleted(),
		Spectators: snap.Spectators,
	}
	if snap.Match != nil {
		view.RemainingSeconds = snap.Match.Timer.Effective(now)
	}
	view.Role, view.Slot = snap.RoleOf(viewer)

	for _, slot := range model.Slots {
		sv := SlotView{Slot: slot, Units: snap.SlotUnits(slot)}
		if p := snap.Player(slot); p != nil {
			sv.Player = p
			sv.VictoryPoints = p.VictoryPoints
			sv.TotalPoints = p.TotalPoints
		}
		view.Slots = append(view.Slots, sv)
	}
	return view
}
