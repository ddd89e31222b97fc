package reporting

import (
	"fmt"
	"strings"
)

// RenderMintCSV renders mint event rows as CSV string.
func RenderMintCSV(rows []MintRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("event_id,amount,pool_share,stakeholder_share,status,")
	sb.WriteString("pool_tx_ref,stakeholder_tx_ref,failed_leg,created_at,resolved_at\n")

	// Rows
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%d,%d,%d,%s,%s,%s,%s,%d,%d\n",
			r.EventID,
			r.Amount,
			r.PoolShare,
			r.StakeholderShare,
			r.Status,
			r.PoolTxRef,
			r.StakeholderTxRef,
			r.FailedLeg,
			r.CreatedAt,
			r.ResolvedAt,
		))
	}

	return sb.String()
}

// RenderClaimCSV renders claim rows as CSV string.
func RenderClaimCSV(rows []ClaimRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("idempotency_key,player_id,amount,status,reason,tx_ref,created_at,resolved_at\n")

	// Rows
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%s,%s,%s,%d,%d\n",
			r.IdempotencyKey,
			r.PlayerID,
			r.Amount,
			r.Status,
			r.Reason,
			r.TxRef,
			r.CreatedAt,
			r.ResolvedAt,
		))
	}

	return sb.String()
}
