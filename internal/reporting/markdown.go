package reporting

import (
	"fmt"
	"strings"
	"time"

	"solana-escrow-lab/internal/token"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Escrow Activity Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Slots: %d to %d\n\n", r.FromSlot, r.ToSlot))

	sb.WriteString("## Offers\n\n")
	sb.WriteString("| Status | Count |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| OPEN | %d |\n", r.Offers.Open))
	sb.WriteString(fmt.Sprintf("| TAKEN | %d |\n", r.Offers.Taken))
	sb.WriteString(fmt.Sprintf("| WITHDRAWN | %d |\n", r.Offers.Withdrawn))
	sb.WriteString(fmt.Sprintf("| CANCELLED | %d |\n", r.Offers.Cancelled))
	sb.WriteString(fmt.Sprintf("| **Total** | **%d** |\n", r.Offers.Total()))
	sb.WriteString("\n")

	sb.WriteString("## Pairs\n\n")
	if len(r.Pairs) == 0 {
		sb.WriteString("No offers opened in range.\n\n")
	} else {
		sb.WriteString("| Mint X | Mint Y | Open | Settled | Cancelled | Volume X | Volume Y |\n")
		sb.WriteString("|--------|--------|------|---------|-----------|----------|----------|\n")
		for _, p := range r.Pairs {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %d | %s | %s |\n",
				p.MintX, p.MintY, p.Open, p.Settled, p.Cancelled,
				token.FormatAmount(p.VolumeX, p.DecimalX),
				token.FormatAmount(p.VolumeY, p.DecimalY),
			))
		}
		sb.WriteString("\n")
	}

	if len(r.Makers) > 0 {
		sb.WriteString("## Makers\n\n")
		sb.WriteString("| Maker | Offers | Open | Settled |\n")
		sb.WriteString("|-------|--------|------|---------|\n")
		for _, m := range r.Makers {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d |\n", m.Maker, m.Offers, m.Open, m.Settled))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Executions\n\n")
	if len(r.Executions) == 0 {
		sb.WriteString("No executions in range.\n\n")
	} else {
		sb.WriteString("| Kind | Count | Raw X | Raw Y |\n")
		sb.WriteString("|------|-------|-------|-------|\n")
		for _, k := range r.Executions {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d |\n", k.Kind, k.Count, k.AmountX, k.AmountY))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Integrity\n\n")
	if len(r.Integrity) == 0 {
		sb.WriteString("Offers and executions are consistent.\n")
	} else {
		for _, problem := range r.Integrity {
			sb.WriteString(fmt.Sprintf("- %s\n", problem))
		}
	}

	return sb.String()
}
