package ledger

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-escrow-lab/internal/solana"
)

func key(b byte) solana.PublicKey {
	var pk solana.PublicKey
	for i := range pk {
		pk[i] = b
	}
	return pk
}

func fixedClock() time.Time {
	return time.Unix(1_700_000_000, 0)
}

func TestRent_MinimumBalance(t *testing.T) {
	r := DefaultRent()
	assert.Equal(t, uint64(890_880), r.MinimumBalance(0))
	assert.Equal(t, uint64(2_039_280), r.MinimumBalance(165))
	assert.True(t, r.IsExempt(2_039_280, 165))
	assert.False(t, r.IsExempt(2_039_279, 165))
}

func TestBank_TransferCommits(t *testing.T) {
	bank := NewBank(WithClock(fixedClock))
	alice, bob := key(1), key(2)
	require.NoError(t, bank.Airdrop(alice, 1_000))

	receipt, err := bank.Process(&Transaction{
		Signers:      []solana.PublicKey{alice},
		Instructions: []Instruction{TransferInstruction(alice, bob, 400)},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), receipt.Slot)
	assert.Equal(t, fixedClock().Unix(), receipt.Timestamp)
	assert.Equal(t, []string{
		fmt.Sprintf("Program %s invoke [1]", solana.SystemProgramID),
		fmt.Sprintf("Program %s success", solana.SystemProgramID),
	}, receipt.Logs)

	a, ok := bank.GetAccount(alice)
	require.True(t, ok)
	assert.Equal(t, uint64(600), a.Lamports)
	b, ok := bank.GetAccount(bob)
	require.True(t, ok)
	assert.Equal(t, uint64(400), b.Lamports)
}

func TestBank_FailedTransactionRollsBack(t *testing.T) {
	bank := NewBank()
	alice, bob := key(1), key(2)
	require.NoError(t, bank.Airdrop(alice, 1_000))

	_, err := bank.Process(&Transaction{
		Signers: []solana.PublicKey{alice},
		Instructions: []Instruction{
			TransferInstruction(alice, bob, 400),
			TransferInstruction(alice, bob, 700),
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientLamports)

	var txErr *TransactionError
	require.True(t, errors.As(err, &txErr))
	assert.Equal(t, 1, txErr.Index)

	a, _ := bank.GetAccount(alice)
	assert.Equal(t, uint64(1_000), a.Lamports)
	_, ok := bank.GetAccount(bob)
	assert.False(t, ok, "bob must not exist after rollback")
}

func TestBank_UnsignedTransferRejected(t *testing.T) {
	bank := NewBank()
	alice, bob := key(1), key(2)
	require.NoError(t, bank.Airdrop(alice, 1_000))

	_, err := bank.Process(&Transaction{
		Instructions: []Instruction{TransferInstruction(alice, bob, 1)},
	})
	assert.ErrorIs(t, err, ErrMissingRequiredSignature)
}

func TestBank_EmptyTransaction(t *testing.T) {
	bank := NewBank()
	_, err := bank.Process(&Transaction{})
	assert.ErrorIs(t, err, ErrEmptyTransaction)
}

func TestBank_UnknownProgram(t *testing.T) {
	bank := NewBank()
	_, err := bank.Process(&Transaction{
		Instructions: []Instruction{{ProgramID: key(77)}},
	})
	assert.ErrorIs(t, err, ErrProgramNotFound)
}

func TestBank_ZeroBalanceAccountsReleased(t *testing.T) {
	bank := NewBank()
	alice, bob := key(1), key(2)
	require.NoError(t, bank.Airdrop(alice, 500))

	_, err := bank.Process(&Transaction{
		Signers:      []solana.PublicKey{alice},
		Instructions: []Instruction{TransferInstruction(alice, bob, 500)},
	})
	require.NoError(t, err)

	_, ok := bank.GetAccount(alice)
	assert.False(t, ok)
}

func TestBank_CreateAccountAlreadyInUse(t *testing.T) {
	bank := NewBank()
	payer, target := key(1), key(2)
	require.NoError(t, bank.Airdrop(payer, 10_000_000))
	require.NoError(t, bank.Airdrop(target, 1))

	_, err := bank.Process(&Transaction{
		Signers: []solana.PublicKey{payer, target},
		Instructions: []Instruction{
			CreateAccountInstruction(payer, target, 1_000_000, 10, key(9)),
		},
	})
	assert.ErrorIs(t, err, ErrAccountAlreadyInUse)
}

func TestBank_RuntimeRules(t *testing.T) {
	programID := key(50)
	other := key(51)

	tests := []struct {
		name    string
		meta    AccountMeta
		owner   solana.PublicKey
		mutate  func(v *AccountView) error
		wantErr error
	}{
		{
			name:  "write foreign data",
			meta:  Writable(key(3)),
			owner: other,
			mutate: func(v *AccountView) error {
				v.Data()[0] = 1
				return nil
			},
			wantErr: ErrExternalDataModified,
		},
		{
			name:  "write read-only data",
			meta:  ReadOnly(key(3)),
			owner: programID,
			mutate: func(v *AccountView) error {
				v.Data()[0] = 1
				return nil
			},
			wantErr: ErrReadonlyDataModified,
		},
		{
			name:  "reassign foreign account",
			meta:  Writable(key(3)),
			owner: other,
			mutate: func(v *AccountView) error {
				v.Assign(programID)
				return nil
			},
			wantErr: ErrModifiedProgramID,
		},
		{
			name:  "mint lamports",
			meta:  Writable(key(3)),
			owner: programID,
			mutate: func(v *AccountView) error {
				return v.AddLamports(1)
			},
			wantErr: ErrUnbalancedInstruction,
		},
		{
			name:  "grow past realloc limit",
			meta:  Writable(key(3)),
			owner: programID,
			mutate: func(v *AccountView) error {
				return v.Resize(v.DataLen() + MaxPermittedDataIncrease + 1)
			},
			wantErr: ErrInvalidRealloc,
		},
		{
			name:  "own account write ok",
			meta:  Writable(key(3)),
			owner: programID,
			mutate: func(v *AccountView) error {
				v.Data()[0] = 7
				return v.Resize(v.DataLen() + MaxPermittedDataIncrease)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bank := NewBank()
			bank.RegisterProgram(programID, ProgramFunc(func(ctx *InvokeContext, accounts []*AccountView, data []byte) error {
				return tt.mutate(accounts[0])
			}))
			bank.SetAccount(tt.meta.PublicKey, &Account{Lamports: 100, Data: make([]byte, 8), Owner: tt.owner})

			_, err := bank.Process(&Transaction{
				Instructions: []Instruction{{ProgramID: programID, Accounts: []AccountMeta{tt.meta}}},
			})
			if tt.wantErr == nil {
				require.NoError(t, err)
				a, _ := bank.GetAccount(tt.meta.PublicKey)
				assert.Equal(t, byte(7), a.Data[0])
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			a, _ := bank.GetAccount(tt.meta.PublicKey)
			assert.Equal(t, byte(0), a.Data[0])
			assert.Equal(t, tt.owner, a.Owner)
		})
	}
}

func TestInvoke_DerivedSigner(t *testing.T) {
	programID := key(60)
	payer := key(1)
	seedTag := []byte("vault")
	pda, bump, err := solana.FindProgramAddress([][]byte{seedTag, payer[:]}, programID)
	require.NoError(t, err)

	withSeeds := true
	bank := NewBank()
	bank.RegisterProgram(programID, ProgramFunc(func(ctx *InvokeContext, accounts []*AccountView, data []byte) error {
		rent := ctx.Rent().MinimumBalance(16)
		ix := CreateAccountInstruction(accounts[0].Key(), accounts[1].Key(), rent, 16, ctx.ProgramID())
		if withSeeds {
			if err := ctx.Invoke(ix, SignerSeeds{seedTag, payer[:], {bump}}); err != nil {
				return err
			}
		} else if err := ctx.Invoke(ix); err != nil {
			return err
		}
		ctx.Log("created %s", accounts[1].Key())
		accounts[1].Data()[0] = 0xAB
		return nil
	}))
	require.NoError(t, bank.Airdrop(payer, 10_000_000))

	tx := &Transaction{
		Signers: []solana.PublicKey{payer},
		Instructions: []Instruction{{
			ProgramID: programID,
			Accounts:  []AccountMeta{Signer(payer), Writable(pda), ReadOnly(solana.SystemProgramID)},
		}},
	}

	withSeeds = false
	_, err = bank.Process(tx)
	require.ErrorIs(t, err, ErrPrivilegeEscalation)

	withSeeds = true
	receipt, err := bank.Process(tx)
	require.NoError(t, err)

	a, ok := bank.GetAccount(pda)
	require.True(t, ok)
	assert.Equal(t, programID, a.Owner)
	assert.Len(t, a.Data, 16)
	assert.Equal(t, byte(0xAB), a.Data[0])
	assert.Equal(t, bank.Rent().MinimumBalance(16), a.Lamports)

	joined := strings.Join(receipt.Logs, "\n")
	assert.Contains(t, joined, fmt.Sprintf("Program %s invoke [2]", solana.SystemProgramID))
	assert.Contains(t, joined, "Program log: created "+pda.String())
}

func TestInvoke_WritableEscalation(t *testing.T) {
	programID := key(61)
	alice, bob := key(1), key(2)
	bank := NewBank()
	bank.RegisterProgram(programID, ProgramFunc(func(ctx *InvokeContext, accounts []*AccountView, data []byte) error {
		return ctx.Invoke(TransferInstruction(alice, bob, 1))
	}))
	require.NoError(t, bank.Airdrop(alice, 100))

	_, err := bank.Process(&Transaction{
		Signers: []solana.PublicKey{alice},
		Instructions: []Instruction{{
			ProgramID: programID,
			Accounts:  []AccountMeta{Signer(alice), ReadOnly(bob)},
		}},
	})
	assert.ErrorIs(t, err, ErrPrivilegeEscalation)
}

func TestInvoke_DepthLimit(t *testing.T) {
	programID := key(62)
	bank := NewBank()
	deepest := 0
	bank.RegisterProgram(programID, ProgramFunc(func(ctx *InvokeContext, accounts []*AccountView, data []byte) error {
		if ctx.Depth() > deepest {
			deepest = ctx.Depth()
		}
		return ctx.Invoke(Instruction{ProgramID: programID})
	}))

	_, err := bank.Process(&Transaction{Instructions: []Instruction{{ProgramID: programID}}})
	assert.ErrorIs(t, err, ErrCallDepth)
	assert.Equal(t, MaxInvokeDepth, deepest)
}

func TestBank_TickAdvancesSlot(t *testing.T) {
	bank := NewBank()
	assert.Equal(t, uint64(1), bank.Tick())
	assert.Equal(t, uint64(2), bank.Tick())
	assert.Equal(t, uint64(2), bank.Slot())
}

func TestBank_SlotAdvancesOnCommitOnly(t *testing.T) {
	bank := NewBank()
	alice, bob := key(1), key(2)
	require.NoError(t, bank.Airdrop(alice, 1_000))

	receipt, err := bank.Process(&Transaction{})
	require.ErrorIs(t, err, ErrEmptyTransaction)
	assert.Equal(t, uint64(1), receipt.Slot)
	assert.Equal(t, uint64(0), bank.Slot())

	receipt, err = bank.Process(&Transaction{
		Signers:      []solana.PublicKey{alice},
		Instructions: []Instruction{TransferInstruction(alice, bob, 5_000)},
	})
	require.ErrorIs(t, err, ErrInsufficientLamports)
	assert.Equal(t, uint64(1), receipt.Slot)
	assert.Equal(t, uint64(0), bank.Slot(), "failed transactions leave the slot alone")

	receipt, err = bank.Process(&Transaction{
		Signers:      []solana.PublicKey{alice},
		Instructions: []Instruction{TransferInstruction(alice, bob, 10)},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), receipt.Slot)
	assert.Equal(t, uint64(1), bank.Slot())
}

// A program may not dodge the growth cap by resizing in steps around
// callee invocations.
func TestInvoke_GrowthCapSpansCallees(t *testing.T) {
	programID := key(63)
	target, alice, bob := key(3), key(1), key(2)

	grow := func(steps, each int) error {
		bank := NewBank()
		bank.RegisterProgram(programID, ProgramFunc(func(ctx *InvokeContext, accounts []*AccountView, data []byte) error {
			for i := 0; i < steps; i++ {
				if err := accounts[0].Resize(accounts[0].DataLen() + each); err != nil {
					return err
				}
				if err := ctx.Invoke(TransferInstruction(alice, bob, 1)); err != nil {
					return err
				}
			}
			return nil
		}))
		require.NoError(t, bank.Airdrop(alice, 100))
		bank.SetAccount(target, &Account{Lamports: 100, Data: make([]byte, 8), Owner: programID})

		_, err := bank.Process(&Transaction{
			Signers: []solana.PublicKey{alice},
			Instructions: []Instruction{{
				ProgramID: programID,
				Accounts: []AccountMeta{
					Writable(target), Signer(alice), Writable(bob),
					ReadOnly(solana.SystemProgramID),
				},
			}},
		})
		if err == nil {
			a, _ := bank.GetAccount(target)
			assert.Len(t, a.Data, 8+steps*each)
		}
		return err
	}

	require.NoError(t, grow(2, MaxPermittedDataIncrease/2))
	assert.ErrorIs(t, grow(2, MaxPermittedDataIncrease/2+1), ErrInvalidRealloc)
	assert.ErrorIs(t, grow(3, MaxPermittedDataIncrease/2), ErrInvalidRealloc)
}
