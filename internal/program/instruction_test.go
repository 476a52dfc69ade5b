package program

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-escrow-lab/internal/ledger"
	"solana-escrow-lab/internal/solana"
)

func TestDecode_Layouts(t *testing.T) {
	take := Encode(EscrowTake{DecimalX: 6, AmountX: 500, DecimalY: 9, AmountY: 10, ID: 7})
	require.Len(t, take, 1+tradeLen)
	assert.Equal(t, DiscEscrowTake, take[0])
	assert.Equal(t, byte(6), take[1])
	assert.Equal(t, byte(9), take[10])
	assert.Equal(t, byte(7), take[19])

	ix, err := Decode(take)
	require.NoError(t, err)
	assert.Equal(t, EscrowTake{DecimalX: 6, AmountX: 500, DecimalY: 9, AmountY: 10, ID: 7}, ix)

	assert.Len(t, Encode(InitConfig{}), 1+42)
	assert.Len(t, Encode(UpdateConfig{}), 1+88)
	assert.Len(t, Encode(EscrowWithdraw{ID: 1}), 1+8)
	assert.Equal(t, []byte{DiscEscrowCancel}, Encode(EscrowCancel{}))
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrInvalidDiscriminator},
		{"unknown discriminator", []byte{0xee}, ErrInvalidDiscriminator},
		{"below range", []byte{DiscInitConfig - 1}, ErrInvalidDiscriminator},
		{"short trade", []byte{DiscEscrowMake, 1, 2, 3}, ErrInputDataLen},
		{"long withdraw", append(Encode(EscrowWithdraw{}), 0), ErrInputDataLen},
		{"cancel with payload", []byte{DiscEscrowCancel, 0}, ErrInputDataLen},
		{"bool out of range", func() []byte {
			b := Encode(InitConfig{Fee: 1})
			b[1] = 2
			return b
		}(), ErrInvalidBool},
		{"update bool out of range", func() []byte {
			b := Encode(UpdateConfig{})
			b[3] = 5
			return b
		}(), ErrInvalidBool},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestProcessor_UnknownInstruction(t *testing.T) {
	h := newHarness(t, 6, 9)
	_, err := h.Send([]solana.PublicKey{h.owner}, ledger.Instruction{
		ProgramID: ProgramID,
		Accounts:  []ledger.AccountMeta{ledger.Signer(h.owner)},
		Data:      []byte{0x42},
	})
	require.ErrorIs(t, err, ErrInvalidDiscriminator)
}

func TestProcessor_WrongArity(t *testing.T) {
	h := newHarness(t, 6, 9)
	_, err := h.Send([]solana.PublicKey{h.owner}, ledger.Instruction{
		ProgramID: ProgramID,
		Accounts:  []ledger.AccountMeta{ledger.Signer(h.owner)},
		Data:      Encode(EscrowCancel{}),
	})
	require.ErrorIs(t, err, ErrNotEnoughAccounts)
}

func TestDerive_Deterministic(t *testing.T) {
	owner := solana.PublicKey{1, 2, 3}

	a1, b1, err := EscrowAddress(ProgramID, owner, 7)
	require.NoError(t, err)
	a2, b2, err := EscrowAddress(ProgramID, owner, 7)
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
	assert.False(t, solana.IsOnCurve(a1[:]))

	other, _, err := EscrowAddress(ProgramID, owner, 8)
	require.NoError(t, err)
	assert.NotEqual(t, a1, other)

	config, _, err := ConfigAddress(ProgramID, owner)
	require.NoError(t, err)
	vault, _, err := VaultAddress(ProgramID, owner)
	require.NoError(t, err)
	assert.NotEqual(t, config, vault)

	// Signer seeds reproduce the address under the program.
	recreated, err := solana.CreateProgramAddress(escrowAuthority(owner, 7, b1).Seeds(), ProgramID)
	require.NoError(t, err)
	assert.Equal(t, a1, recreated)
}

func TestEnsure(t *testing.T) {
	slot := ledger.NewAccountView(solana.PublicKey{9}, false, true, nil)
	inits := 0
	initialize := func() error {
		inits++
		return slot.Resize(8)
	}
	validate := func() (int, error) {
		if slot.DataLen() != 8 {
			return 0, ErrNotInitialized
		}
		return slot.DataLen(), nil
	}

	n, err := ensure(slot, validate, initialize)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	n, err = ensure(slot, validate, initialize)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, 1, inits, "second pass validates only")
}
