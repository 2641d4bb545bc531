package optimizer

// AssembleLineup computes the derived totals for a selection. captainID may be
// empty; bonus is added to the total only when a captain is set.
func AssembleLineup(selected []Candidate, captainID string, bonus float64, salaryCap, rosterSize int) *Lineup {
	lineup := &Lineup{
		Players:   make([]LineupPlayer, len(selected)),
		SalaryCap: salaryCap,
	}
	for i, c := range selected {
		lineup.Players[i] = LineupPlayer{
			ID:               c.ID,
			Name:             c.Name,
			Role:             c.Role,
			Team:             c.Team,
			Salary:           c.Salary,
			ProjectedPoints:  c.ProjectedPoints,
			OwnershipPercent: c.OwnershipPercent,
			Locked:           c.Locked,
			IsCaptain:        captainID != "" && c.ID == captainID,
		}
		lineup.TotalSalary += c.Salary
		lineup.TotalProjectedPoints += c.ProjectedPoints
	}
	if captainID != "" {
		lineup.CaptainID = captainID
		lineup.CaptainBonusPoints = bonus
		lineup.TotalProjectedPoints += bonus
	}
	lineup.RemainingCap = salaryCap - lineup.TotalSalary
	lineup.IsValid = lineup.TotalSalary <= salaryCap && len(selected) == rosterSize
	return lineup
}
