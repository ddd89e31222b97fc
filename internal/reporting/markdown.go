package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Reconciliation Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Window (ms): %d - %d\n\n", r.WindowStart, r.WindowEnd))

	// Pool account
	sb.WriteString("## Reward Pool\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Minted | %d |\n", r.Pool.TotalMinted))
	sb.WriteString(fmt.Sprintf("| Total Claimed | %d |\n", r.Pool.TotalClaimed))
	sb.WriteString(fmt.Sprintf("| Balance | %d |\n", r.Pool.Balance))
	if r.Pool.LedgerBalance != nil {
		sb.WriteString(fmt.Sprintf("| Ledger Balance | %d |\n", *r.Pool.LedgerBalance))
	}
	sb.WriteString("\n")

	// Stakeholder account
	sb.WriteString("## Stakeholder\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Minted | %d |\n", r.Stakeholder.TotalMinted))
	if r.Stakeholder.LedgerBalance != nil {
		sb.WriteString(fmt.Sprintf("| Ledger Balance | %d |\n", *r.Stakeholder.LedgerBalance))
	}
	sb.WriteString("\n")

	// Mint events
	sb.WriteString("## Mint Events\n\n")
	sb.WriteString("| Status | Count |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| COMPLETED | %d |\n", r.Mints.Completed))
	sb.WriteString(fmt.Sprintf("| FAILED | %d |\n", r.Mints.Failed))
	sb.WriteString(fmt.Sprintf("| PENDING | %d |\n", r.Mints.Pending))
	sb.WriteString(fmt.Sprintf("| Total | %d |\n", r.Mints.Total))
	sb.WriteString("\n")

	// Claims
	sb.WriteString("## Claims\n\n")
	sb.WriteString("| Status | Count |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| COMPLETED | %d |\n", r.Claims.Completed))
	sb.WriteString(fmt.Sprintf("| FAILED | %d |\n", r.Claims.Failed))
	sb.WriteString(fmt.Sprintf("| REJECTED | %d |\n", r.Claims.Rejected))
	sb.WriteString(fmt.Sprintf("| RESERVED | %d |\n", r.Claims.Reserved))
	sb.WriteString(fmt.Sprintf("| Total | %d |\n", r.Claims.Total))
	sb.WriteString(fmt.Sprintf("\nCompleted claim units: %d\n\n", r.Claims.CompletedUnits))

	// Stale claims resolved during this run
	if len(r.StaleClaimsResolved) > 0 {
		sb.WriteString("## Stale Claims Resolved\n\n")
		for _, key := range r.StaleClaimsResolved {
			sb.WriteString(fmt.Sprintf("- %s\n", key))
		}
		sb.WriteString("\n")
	}

	// Verdict
	sb.WriteString("## Verdict\n\n")
	if r.Consistent() {
		sb.WriteString("**Audit log is consistent.** Minted = pool credits + stakeholder credits, claims within pool balance.\n")
	} else {
		sb.WriteString("**Discrepancies found:**\n\n")
		for _, d := range r.Discrepancies {
			sb.WriteString(fmt.Sprintf("- %s\n", d))
		}
	}
	sb.WriteString("\n")

	return sb.String()
}
