package ledger

import (
	"fmt"
	"strings"

	"papertrade/internal/models"
)

// Discrepancy describes a failed reconciliation. It is logged in full and
// never shown to clients.
type Discrepancy struct {
	PortfolioID string
	Problems    []string
}

func (d *Discrepancy) Error() string {
	return fmt.Sprintf("ledger: portfolio %s out of balance: %s", d.PortfolioID, strings.Join(d.Problems, "; "))
}

// Reconcile checks the portfolio against its open positions:
//
//	cash + Σcost_basis − realized_pnl + buy_commission == initial_balance
//	Σcost_basis == total_invested
//	cash ≥ 0 and every quantity > 0
func Reconcile(p *models.Portfolio, positions []models.Position) error {
	var problems []string
	if p.CashBalance < 0 {
		problems = append(problems, fmt.Sprintf("negative cash %d", p.CashBalance))
	}

	var costBasis int64
	seen := make(map[string]bool, len(positions))
	for _, pos := range positions {
		if pos.Quantity <= 0 {
			problems = append(problems, fmt.Sprintf("%s has quantity %d", pos.Symbol, pos.Quantity))
		}
		if pos.CostBasis < 0 {
			problems = append(problems, fmt.Sprintf("%s has cost basis %d", pos.Symbol, pos.CostBasis))
		}
		if seen[pos.Symbol] {
			problems = append(problems, fmt.Sprintf("%s appears more than once", pos.Symbol))
		}
		seen[pos.Symbol] = true
		costBasis += pos.CostBasis
	}

	if costBasis != p.TotalInvested {
		problems = append(problems, fmt.Sprintf("Σcost_basis %d != total_invested %d", costBasis, p.TotalInvested))
	}
	if got := p.CashBalance + costBasis - p.RealizedPnL + p.BuyCommission; got != p.InitialBalance {
		problems = append(problems, fmt.Sprintf("cash+cost-realized+buy_commission %d != initial %d (off by %d)",
			got, p.InitialBalance, got-p.InitialBalance))
	}

	if len(problems) > 0 {
		return &Discrepancy{PortfolioID: p.ID, Problems: problems}
	}
	return nil
}
