package ledger

import (
	"bytes"
	"fmt"
	"math/bits"

	"solana-escrow-lab/internal/solana"
)

// SignerSeeds are the seeds (bump included) of a program-derived address
// the calling program signs for.
type SignerSeeds [][]byte

// InvokeContext is the host handle passed to a running program.
type InvokeContext struct {
	state     *txState
	programID solana.PublicKey
	depth     int
	views     []*AccountView
	pre       map[solana.PublicKey]snapshot
}

// ProgramID is the identity of the running program.
func (c *InvokeContext) ProgramID() solana.PublicKey { return c.programID }

// Depth is the invocation depth, 1 for top-level instructions.
func (c *InvokeContext) Depth() int { return c.depth }

// Rent returns the rent sysvar.
func (c *InvokeContext) Rent() Rent { return c.state.bank.rent }

// Clock returns the clock sysvar.
func (c *InvokeContext) Clock() Clock { return c.state.clock }

// Log appends a program log line.
func (c *InvokeContext) Log(format string, args ...any) {
	c.state.logf("Program log: "+format, args...)
}

// Invoke calls another program with a subset of the caller's accounts.
// Signer privilege comes either from the caller's own signers or from
// signerSeeds, which must derive to addresses under the caller's program id.
func (c *InvokeContext) Invoke(ix Instruction, signerSeeds ...SignerSeeds) error {
	if c.depth >= MaxInvokeDepth {
		return ErrCallDepth
	}

	derived := make(map[solana.PublicKey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		pk, err := solana.CreateProgramAddress(seeds, c.programID)
		if err != nil {
			return fmt.Errorf("signer seeds: %w", err)
		}
		derived[pk] = true
	}

	views := make([]*AccountView, len(ix.Accounts))
	for i, m := range ix.Accounts {
		account, signer, writable, ok := c.lookup(m.PublicKey)
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingAccount, m.PublicKey)
		}
		if m.IsSigner && !signer && !derived[m.PublicKey] {
			return fmt.Errorf("%w: %s signer", ErrPrivilegeEscalation, m.PublicKey)
		}
		if m.IsWritable && !writable {
			return fmt.Errorf("%w: %s writable", ErrPrivilegeEscalation, m.PublicKey)
		}
		views[i] = &AccountView{
			key:      m.PublicKey,
			signer:   m.IsSigner,
			writable: m.IsWritable,
			account:  account,
		}
	}

	// Changes made by the caller so far are checked before the callee runs,
	// then the baseline moves past the callee's effects.
	if err := c.verify(); err != nil {
		return err
	}
	if err := c.state.run(ix.ProgramID, views, ix.Data, c.depth+1); err != nil {
		return err
	}
	c.pre = takeSnapshot(c.views)
	return nil
}

func (c *InvokeContext) lookup(pk solana.PublicKey) (account *Account, signer, writable, ok bool) {
	for _, v := range c.views {
		if v.key != pk {
			continue
		}
		account = v.account
		signer = signer || v.signer
		writable = writable || v.writable
		ok = true
	}
	return account, signer, writable, ok
}

type snapshot struct {
	lamports   uint64
	data       []byte
	owner      solana.PublicKey
	executable bool
	writable   bool
	account    *Account
}

func takeSnapshot(views []*AccountView) map[solana.PublicKey]snapshot {
	snaps := make(map[solana.PublicKey]snapshot, len(views))
	for _, v := range views {
		if prev, ok := snaps[v.key]; ok {
			prev.writable = prev.writable || v.writable
			snaps[v.key] = prev
			continue
		}
		data := make([]byte, len(v.account.Data))
		copy(data, v.account.Data)
		snaps[v.key] = snapshot{
			lamports:   v.account.Lamports,
			data:       data,
			owner:      v.account.Owner,
			executable: v.account.Executable,
			writable:   v.writable,
			account:    v.account,
		}
	}
	return snaps
}

// verify enforces the runtime's account rules against the snapshot taken
// when this invocation started (or last returned from a callee).
func (c *InvokeContext) verify() error {
	var preSum, postSum uint64
	var carry uint64
	for key, pre := range c.pre {
		post := pre.account

		preSum, carry = bits.Add64(preSum, pre.lamports, 0)
		if carry != 0 {
			return ErrArithmeticOverflow
		}
		postSum, carry = bits.Add64(postSum, post.Lamports, 0)
		if carry != 0 {
			return ErrArithmeticOverflow
		}

		if pre.executable != post.Executable {
			return fmt.Errorf("%w: %s", ErrExecutableModified, key)
		}
		dataChanged := !bytes.Equal(pre.data, post.Data)
		if !pre.writable {
			if pre.lamports != post.Lamports {
				return fmt.Errorf("%w: %s", ErrReadonlyLamportChange, key)
			}
			if dataChanged || pre.owner != post.Owner {
				return fmt.Errorf("%w: %s", ErrReadonlyDataModified, key)
			}
			continue
		}
		if pre.owner != post.Owner && pre.owner != c.programID {
			return fmt.Errorf("%w: %s", ErrModifiedProgramID, key)
		}
		if pre.owner != c.programID {
			if dataChanged {
				return fmt.Errorf("%w: %s", ErrExternalDataModified, key)
			}
			if post.Lamports < pre.lamports {
				return fmt.Errorf("%w: %s", ErrExternalLamportSpend, key)
			}
		}
		base, ok := c.state.origLen[key]
		if !ok {
			base = len(pre.data)
		}
		if base > 0 && len(post.Data) > base+MaxPermittedDataIncrease {
			return fmt.Errorf("%w: %s grew by %d bytes", ErrInvalidRealloc, key, len(post.Data)-base)
		}
	}
	if preSum != postSum {
		return fmt.Errorf("%w: %d != %d", ErrUnbalancedInstruction, preSum, postSum)
	}
	c.pre = takeSnapshot(c.views)
	return nil
}
