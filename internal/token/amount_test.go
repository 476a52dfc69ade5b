package token_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"solana-escrow-lab/internal/token"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount   uint64
		decimals uint8
		want     string
	}{
		{0, 0, "0"},
		{0, 6, "0"},
		{1500, 3, "1.5"},
		{1, 9, "0.000000001"},
		{10_000_000_000, 9, "10"},
		{123, 0, "123"},
		{^uint64(0), 9, "18446744073.709551615"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, token.FormatAmount(tt.amount, tt.decimals), "%d/%d", tt.amount, tt.decimals)
	}
}
