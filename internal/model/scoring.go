package model

// VictoryPointsFor is the score the given slot has earned from its
// opponent's knocked out units.
func VictoryPointsFor(slot Slot, units []*Unit) int {
	opponent := slot.Opponent()
	total := 0
	for _, u := range units {
		if u.Slot == opponent && u.IsKO && u.Scores() {
			total += u.Points
		}
	}
	return total
}

// TotalPointsFor is the face value of the slot's own active roster
func TotalPointsFor(slot Slot, units []*Unit) int {
	total := 0
	for _, u := range units {
		if u.Slot == slot && u.Scores() {
			total += u.Points
		}
	}
	return total
}
