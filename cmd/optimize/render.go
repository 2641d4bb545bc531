package main

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/stitts-dev/cfl-optimizer/internal/optimizer"
)

// renderResult prints one table per lineup followed by its totals.
func renderResult(out io.Writer, result *optimizer.Result) error {
	fmt.Fprintf(out, "optimization %s  backend=%s  mode=%s  %dms\n",
		result.OptimizationID, result.Backend, result.Mode, result.ElapsedMs)

	for i, lineup := range result.Lineups {
		fmt.Fprintf(out, "\nLineup %d\n", i+1)
		if err := renderLineup(out, lineup); err != nil {
			return err
		}
	}
	return nil
}

func renderLineup(out io.Writer, lineup *optimizer.Lineup) error {
	table := tablewriter.NewWriter(out)
	table.Header("Pos", "Player", "Team", "Salary", "Proj", "Own%", "")

	for _, p := range lineup.Players {
		flags := ""
		if p.IsCaptain {
			flags = "C"
		}
		if p.Locked {
			flags += "L"
		}
		if err := table.Append(
			string(p.Role),
			p.Name,
			p.Team,
			fmt.Sprintf("$%d", p.Salary),
			fmt.Sprintf("%.2f", p.ProjectedPoints),
			fmt.Sprintf("%.1f", p.OwnershipPercent),
			flags,
		); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintf(out, "  salary $%d / $%d (remaining $%d)  projected %.2f",
		lineup.TotalSalary, lineup.SalaryCap, lineup.RemainingCap, lineup.TotalProjectedPoints)
	if lineup.CaptainID != "" {
		fmt.Fprintf(out, " incl. captain bonus %.2f", lineup.CaptainBonusPoints)
	}
	if !lineup.IsValid {
		fmt.Fprint(out, "  INVALID")
	}
	fmt.Fprintln(out)
	return nil
}
