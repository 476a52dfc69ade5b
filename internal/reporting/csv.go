package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders the pair table as CSV. Volumes are raw units.
func RenderCSV(r *Report) string {
	var sb strings.Builder

	sb.WriteString("mint_x,mint_y,decimal_x,decimal_y,open,settled,cancelled,volume_x,volume_y\n")
	for _, p := range r.Pairs {
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%d,%d,%d,%d,%d,%d\n",
			p.MintX,
			p.MintY,
			p.DecimalX,
			p.DecimalY,
			p.Open,
			p.Settled,
			p.Cancelled,
			p.VolumeX,
			p.VolumeY,
		))
	}

	return sb.String()
}
