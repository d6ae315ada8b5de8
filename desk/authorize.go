package desk

// CanDelegate reports whether from may hand a task to to.
//
// Delegation is allowed down a direct reporting edge, or sideways within a
// team to an equal-or-junior level. The team rule requires a non-empty team
// on both sides; two teamless desks are not teammates. Level is taken as
// recorded on the desk, so a mis-set level widens the team rule.
func CanDelegate(from, to *Desk) bool {
	if from == nil || to == nil {
		return false
	}
	if to.ReportsTo == from.ID {
		return true
	}
	if from.TeamID != "" && to.TeamID == from.TeamID && to.Level >= from.Level {
		return true
	}
	return false
}
