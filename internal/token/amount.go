package token

import "fmt"

// FormatAmount renders amount / 10^decimals without floating point, trailing zeros trimmed.
func FormatAmount(amount uint64, decimals uint8) string {
	digits := fmt.Sprintf("%0*d", int(decimals)+1, amount)
	whole, frac := digits[:len(digits)-int(decimals)], digits[len(digits)-int(decimals):]
	for len(frac) > 0 && frac[len(frac)-1] == '0' {
		frac = frac[:len(frac)-1]
	}
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}
