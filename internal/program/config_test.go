package program

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-escrow-lab/internal/solana"
)

func TestInitConfig(t *testing.T) {
	h := newHarness(t, 6, 9)
	r, err := h.initConfig(InitConfig{IsAuthorized: true, Status: StatusActive, Fee: 25, Label: label("desk")},
		[4]solana.PublicKey{h.mintX, h.mintY})
	require.NoError(t, err)
	assert.True(t, hasLog(r, "Program log: config_init"))

	cfg := h.config()
	vault, vaultBump, err := VaultAddress(ProgramID, h.owner)
	require.NoError(t, err)
	_, bump, err := ConfigAddress(ProgramID, h.owner)
	require.NoError(t, err)

	assert.Equal(t, [4]solana.PublicKey{h.mintX, h.mintY}, cfg.Mints)
	assert.Equal(t, vault, cfg.Vault)
	assert.Equal(t, h.owner, cfg.ProgOwner)
	assert.Equal(t, h.admin, cfg.Admin)
	assert.Equal(t, label("desk"), cfg.Label)
	assert.Equal(t, uint64(25), cfg.Fee)
	assert.Equal(t, uint32(1_700_000_000), cfg.UpdatedAt)
	assert.True(t, cfg.IsAuthorized)
	assert.Equal(t, StatusActive, cfg.Status)
	assert.Equal(t, vaultBump, cfg.VaultBump)
	assert.Equal(t, bump, cfg.Bump)

	v, ok := h.Bank.GetAccount(vault)
	require.True(t, ok)
	assert.Equal(t, ProgramID, v.Owner)
	assert.Len(t, v.Data, VaultLen)
	assert.True(t, h.Bank.Rent().IsExempt(v.Lamports, len(v.Data)))
}

func TestInitConfig_Rejects(t *testing.T) {
	t.Run("twice", func(t *testing.T) {
		h := newHarness(t, 6, 9)
		h.mustInitConfig()
		_, err := h.initConfig(InitConfig{Status: StatusActive, Fee: 1}, [4]solana.PublicKey{})
		require.ErrorIs(t, err, ErrAlreadyInitialized)
	})

	t.Run("zero fee", func(t *testing.T) {
		h := newHarness(t, 6, 9)
		_, err := h.initConfig(InitConfig{Status: StatusActive}, [4]solana.PublicKey{})
		require.ErrorIs(t, err, ErrZeroAmount)
		assert.False(t, h.Exists(h.configAddr()))
	})

	t.Run("owner not signing", func(t *testing.T) {
		h := newHarness(t, 6, 9)
		ix, err := NewInitConfig(ProgramID, h.admin, h.owner, h.admin, [4]solana.PublicKey{}, InitConfig{Status: StatusActive, Fee: 1})
		require.NoError(t, err)
		_, err = h.Send([]solana.PublicKey{h.admin}, ix)
		require.ErrorIs(t, err, ErrOnlyProgramOwner)
	})

	t.Run("mint not a mint", func(t *testing.T) {
		h := newHarness(t, 6, 9)
		_, err := h.initConfig(InitConfig{Status: StatusActive, Fee: 1}, [4]solana.PublicKey{h.maker})
		require.ErrorIs(t, err, ErrMintDataLen)
	})

	t.Run("bad status byte", func(t *testing.T) {
		h := newHarness(t, 6, 9)
		ix, err := NewInitConfig(ProgramID, h.owner, h.owner, h.admin, [4]solana.PublicKey{}, InitConfig{Fee: 1})
		require.NoError(t, err)
		ix.Data[2] = 9
		_, err = h.Send([]solana.PublicKey{h.owner}, ix)
		require.ErrorIs(t, err, ErrInvalidStatus)
	})
}

func (h *harness) configAddr() solana.PublicKey {
	addr, _, err := ConfigAddress(ProgramID, h.owner)
	require.NoError(h.t, err)
	return addr
}

func (h *harness) update(authority solana.PublicKey, account1 solana.PublicKey, args UpdateConfig) error {
	ix, err := NewUpdateConfig(ProgramID, authority, h.owner, account1, solana.SystemProgramID, args)
	require.NoError(h.t, err)
	_, err = h.Send([]solana.PublicKey{authority}, ix)
	return err
}

func TestUpdateConfig(t *testing.T) {
	h := newHarness(t, 6, 9)
	h.mustInitConfig()
	newAdmin := h.NewWallet(walletLamports)

	t.Run("status by admin", func(t *testing.T) {
		var args UpdateConfig
		args.U8s = [4]uint8{SelectStatus, uint8(StatusPaused)}
		require.NoError(t, h.update(h.admin, h.admin, args))
		assert.Equal(t, StatusPaused, h.config().Status)
	})

	t.Run("fee group", func(t *testing.T) {
		var args UpdateConfig
		args.U8s = [4]uint8{SelectFee, uint8(StatusActive)}
		args.U64s[0] = 40
		args.Label = label("desk-2")
		require.NoError(t, h.update(h.admin, newAdmin, args))

		cfg := h.config()
		assert.Equal(t, uint64(40), cfg.Fee)
		assert.Equal(t, StatusActive, cfg.Status)
		assert.Equal(t, newAdmin, cfg.Admin)
		assert.Equal(t, label("desk-2"), cfg.Label)
	})

	t.Run("admin group needs owner", func(t *testing.T) {
		var args UpdateConfig
		args.U8s[0] = SelectAdmin
		err := h.update(newAdmin, h.admin, args)
		require.ErrorIs(t, err, ErrOnlyProgramOwner)
		assert.Equal(t, newAdmin, h.config().Admin)

		require.NoError(t, h.update(h.owner, h.admin, args))
		assert.Equal(t, h.admin, h.config().Admin)
	})

	t.Run("stranger", func(t *testing.T) {
		var args UpdateConfig
		args.U8s = [4]uint8{SelectStatus, uint8(StatusExpired)}
		err := h.update(h.maker, h.maker, args)
		require.ErrorIs(t, err, ErrAuthority)
	})

	t.Run("rejected groups leave the record untouched", func(t *testing.T) {
		before := h.config()
		tests := []struct {
			name string
			args func() UpdateConfig
			want error
		}{
			{"zero fee", func() UpdateConfig {
				var a UpdateConfig
				a.U8s[0] = SelectFee
				return a
			}, ErrZeroAmount},
			{"bad status", func() UpdateConfig {
				var a UpdateConfig
				a.U8s = [4]uint8{SelectStatus, 7}
				return a
			}, ErrInvalidStatus},
			{"unknown selector", func() UpdateConfig {
				var a UpdateConfig
				a.U8s[0] = 9
				return a
			}, ErrFunctionSelector},
		}
		for _, tt := range tests {
			err := h.update(h.admin, h.maker, tt.args())
			require.ErrorIs(t, err, tt.want, tt.name)
		}
		assert.Equal(t, before, h.config())
	})
}

func TestUpdateConfig_OwnerHandover(t *testing.T) {
	h := newHarness(t, 6, 9)
	h.mustInitConfig()
	next := h.NewWallet(walletLamports)

	var args UpdateConfig
	args.U8s[0] = SelectOwner
	require.NoError(t, h.update(h.owner, next, args))
	assert.Equal(t, next, h.config().ProgOwner)

	// The record stays at its original address and answers to the new owner.
	args.U8s[0] = SelectAdmin
	require.ErrorIs(t, h.update(h.owner, h.owner, args), ErrAuthority)
	require.NoError(t, h.update(next, h.maker, args))
	assert.Equal(t, h.maker, h.config().Admin)
}

func TestResizeConfig_RoundTrip(t *testing.T) {
	h := newHarness(t, 6, 9)
	h.mustInitConfig()
	rent := h.Bank.Rent()
	ownerBefore := h.Lamports(h.owner)
	cfgBefore := h.config()

	resize := func(authority solana.PublicKey, size uint64) error {
		ix, err := NewResizeConfig(ProgramID, authority, h.owner, size)
		require.NoError(t, err)
		_, err = h.Send([]solana.PublicKey{authority}, ix)
		return err
	}

	require.NoError(t, resize(h.owner, 1000))
	a, ok := h.Bank.GetAccount(h.configAddr())
	require.True(t, ok)
	assert.Len(t, a.Data, 1000)
	assert.Equal(t, rent.MinimumBalance(1000), a.Lamports)
	assert.Equal(t, ownerBefore-(rent.MinimumBalance(1000)-rent.MinimumBalance(ConfigLen)), h.Lamports(h.owner))
	assert.Equal(t, cfgBefore, h.config(), "record survives growth")

	require.NoError(t, resize(h.owner, ConfigLen))
	a, _ = h.Bank.GetAccount(h.configAddr())
	assert.Len(t, a.Data, ConfigLen)
	assert.Equal(t, rent.MinimumBalance(ConfigLen), a.Lamports)
	assert.Equal(t, ownerBefore, h.Lamports(h.owner))

	require.ErrorIs(t, resize(h.owner, ConfigLen-1), ErrConfigDataLen)
	require.ErrorIs(t, resize(h.maker, 512), ErrAuthority)
}

func TestCloseConfig(t *testing.T) {
	h := newHarness(t, 6, 9)
	h.mustInitConfig()
	config := h.configAddr()
	held := h.Lamports(config)
	dest := h.NewKey()

	ix, err := NewCloseConfig(ProgramID, h.admin, h.owner, dest)
	require.NoError(t, err)
	r, err := h.Send([]solana.PublicKey{h.admin}, ix)
	require.NoError(t, err)
	assert.True(t, hasLog(r, "Program log: config_close"))

	assert.False(t, h.Exists(config))
	assert.Equal(t, held, h.Lamports(dest))

	h.Fund(h.maker, h.mintX, h.mintAuth, offerX)
	_, err = h.make(offer(1))
	require.ErrorIs(t, err, ErrForeignAccount)
}

func TestCloseConfig_SameDestination(t *testing.T) {
	h := newHarness(t, 6, 9)
	h.mustInitConfig()
	ix, err := NewCloseConfig(ProgramID, h.owner, h.owner, h.configAddr())
	require.NoError(t, err)

	_, err = h.Send([]solana.PublicKey{h.owner}, ix)
	require.ErrorIs(t, err, ErrInvalidDestination)
	assert.True(t, h.Exists(h.configAddr()))
}
