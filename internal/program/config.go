package program

import (
	"solana-escrow-lab/internal/ledger"
	"solana-escrow-lab/internal/solana"
)

// initConfig accounts: signer, config, mint0..3, vault, prog_owner, admin, system_program.
func initConfig(ctx *ledger.InvokeContext, accounts []*ledger.AccountView, ix InitConfig) error {
	if err := checkAccounts(accounts, 10); err != nil {
		return err
	}
	signer, config, vault := accounts[0], accounts[1], accounts[6]
	mints := accounts[2:6]
	progOwner, admin, systemProgram := accounts[7], accounts[8], accounts[9]
	rent := ctx.Rent()
	programID := ctx.ProgramID()

	if err := checkSigner(signer); err != nil {
		return err
	}
	if !progOwner.IsSigner() {
		return ErrOnlyProgramOwner
	}
	if err := checkWritable(signer, config, vault); err != nil {
		return err
	}
	if err := checkPrograms(nil, systemProgram, nil); err != nil {
		return err
	}
	if config.Lamports() != 0 || !config.IsEmpty() {
		return ErrAlreadyInitialized
	}
	if err := checkNonZero(ix.Fee); err != nil {
		return err
	}
	var allowList [4]solana.PublicKey
	for i, m := range mints {
		if m.Key().IsZero() {
			continue
		}
		if _, err := checkMint(rent, m, nil); err != nil {
			return err
		}
		allowList[i] = m.Key()
	}

	configAddr, configBump, err := ConfigAddress(programID, progOwner.Key())
	if err != nil {
		return ErrConfigAddress
	}
	if err := checkAddress(config, configAddr, ErrConfigAddress); err != nil {
		return err
	}
	vaultAddr, vaultBump, err := VaultAddress(programID, progOwner.Key())
	if err != nil {
		return ErrVaultAddress
	}
	if err := checkAddress(vault, vaultAddr, ErrVaultAddress); err != nil {
		return err
	}

	clock := ctx.Clock()
	_, err = ensure(vault,
		func() (struct{}, error) {
			if err := checkOwnedBy(vault, programID); err != nil {
				return struct{}{}, err
			}
			if vault.DataLen() != VaultLen {
				return struct{}{}, ErrVaultDataLen
			}
			return struct{}{}, checkRentExempt(rent, vault)
		},
		func() error {
			ctx.Log("create vault %s", vault.Key())
			if err := createPDA(ctx, signer, vault, VaultLen, vaultAuthority(progOwner.Key(), vaultBump)); err != nil {
				return err
			}
			(&Vault{CreatedAt: clock.UnixTimestamp, Slot: clock.Slot}).Encode(vault.Data())
			return nil
		},
	)
	if err != nil {
		return err
	}

	if err := createPDA(ctx, signer, config, ConfigLen, configAuthority(progOwner.Key(), configBump)); err != nil {
		return err
	}
	cfg := &Config{
		Mints:        allowList,
		Vault:        vault.Key(),
		ProgOwner:    progOwner.Key(),
		Admin:        admin.Key(),
		Label:        ix.Label,
		Fee:          ix.Fee,
		UpdatedAt:    uint32(clock.UnixTimestamp),
		IsAuthorized: ix.IsAuthorized,
		Status:       ix.Status,
		VaultBump:    vaultBump,
		Bump:         configBump,
	}
	cfg.Encode(config.Data())

	ctx.Log("config_init config=%s owner=%s admin=%s status=%d fee=%d authorized=%t",
		config.Key(), cfg.ProgOwner, cfg.Admin, cfg.Status, cfg.Fee, cfg.IsAuthorized)
	return nil
}

// administeredConfig runs the checks shared by update, resize and close.
func administeredConfig(ctx *ledger.InvokeContext, authority, config *ledger.AccountView) (*Config, error) {
	if err := checkSigner(authority); err != nil {
		return nil, err
	}
	if err := checkWritable(config); err != nil {
		return nil, err
	}
	cfg, err := loadConfig(ctx.ProgramID(), config)
	if err != nil {
		return nil, err
	}
	if !cfg.CanAdminister(authority.Key()) {
		return nil, ErrAuthority
	}
	return cfg, nil
}

// updateConfig accounts: authority, config, account1, account2.
func updateConfig(ctx *ledger.InvokeContext, accounts []*ledger.AccountView, ix UpdateConfig) error {
	if err := checkAccounts(accounts, 4); err != nil {
		return err
	}
	authority, config, account1 := accounts[0], accounts[1], accounts[2]
	cfg, err := administeredConfig(ctx, authority, config)
	if err != nil {
		return err
	}

	// Each group validates into a copy; the record is written once.
	next := *cfg
	selector := ix.U8s[0]
	switch selector {
	case SelectStatus:
		status, err := ParseStatus(ix.U8s[1])
		if err != nil {
			return err
		}
		next.Status = status
	case SelectFee:
		if err := checkNonZero(ix.U64s[0]); err != nil {
			return err
		}
		status, err := ParseStatus(ix.U8s[1])
		if err != nil {
			return err
		}
		next.Fee = ix.U64s[0]
		next.Status = status
		next.Admin = account1.Key()
		next.Label = ix.Label
		next.UpdatedAt = uint32(ctx.Clock().UnixTimestamp)
	case SelectAdmin:
		if authority.Key() != cfg.ProgOwner {
			return ErrOnlyProgramOwner
		}
		next.Admin = account1.Key()
	case SelectOwner:
		if authority.Key() != cfg.ProgOwner {
			return ErrOnlyProgramOwner
		}
		if account1.Key().IsZero() {
			return ErrOnlyProgramOwner
		}
		next.ProgOwner = account1.Key()
	default:
		return ErrFunctionSelector
	}
	next.Encode(config.Data())

	ctx.Log("config_update config=%s authority=%s selector=%d status=%d fee=%d admin=%s owner=%s",
		config.Key(), authority.Key(), selector, next.Status, next.Fee, next.Admin, next.ProgOwner)
	return nil
}

// resizeConfig accounts: authority, config, system_program.
func resizeConfig(ctx *ledger.InvokeContext, accounts []*ledger.AccountView, ix ResizeConfig) error {
	if err := checkAccounts(accounts, 3); err != nil {
		return err
	}
	authority, config, systemProgram := accounts[0], accounts[1], accounts[2]
	if _, err := administeredConfig(ctx, authority, config); err != nil {
		return err
	}
	if err := checkWritable(authority); err != nil {
		return err
	}
	if err := checkPrograms(nil, systemProgram, nil); err != nil {
		return err
	}
	if err := checkNonZero(ix.NewSize); err != nil {
		return err
	}
	if ix.NewSize < ConfigLen || ix.NewSize > ledger.MaxAccountDataLen {
		return ErrConfigDataLen
	}
	size := int(ix.NewSize)
	target := ctx.Rent().MinimumBalance(size)
	current := config.Lamports()

	switch {
	case target > current:
		if err := transferLamports(ctx, authority, config, target-current); err != nil {
			return err
		}
	case current > target:
		refund := current - target
		if err := config.SubLamports(refund); err != nil {
			return ErrMathUnderflow
		}
		if err := authority.AddLamports(refund); err != nil {
			return ErrMathOverflow
		}
	}
	if err := config.Resize(size); err != nil {
		return err
	}

	ctx.Log("config_resize config=%s authority=%s size=%d lamports=%d", config.Key(), authority.Key(), size, config.Lamports())
	return nil
}

// closeConfig accounts: authority, config, destination.
func closeConfig(ctx *ledger.InvokeContext, accounts []*ledger.AccountView) error {
	if err := checkAccounts(accounts, 3); err != nil {
		return err
	}
	authority, config, dest := accounts[0], accounts[1], accounts[2]
	if _, err := administeredConfig(ctx, authority, config); err != nil {
		return err
	}
	if err := checkWritable(dest); err != nil {
		return err
	}
	swept := config.Lamports()
	if err := closeRecord(config, dest); err != nil {
		return err
	}

	ctx.Log("config_close config=%s authority=%s destination=%s lamports=%d",
		config.Key(), authority.Key(), dest.Key(), swept)
	return nil
}
