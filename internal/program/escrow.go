package program

import (
	"solana-escrow-lab/internal/ledger"
	"solana-escrow-lab/internal/token"
)

// ensureAssociated creates the canonical token account of wallet for mint
// when absent, then validates it.
func ensureAssociated(ctx *ledger.InvokeContext, payer, ata, wallet, mint *ledger.AccountView) (*token.Account, error) {
	rent := ctx.Rent()
	return ensure(ata,
		func() (*token.Account, error) {
			return checkAssociated(rent, ata, wallet.Key(), mint.Key())
		},
		func() error {
			ctx.Log("create associated account %s", ata.Key())
			return createAssociated(ctx, payer, ata, wallet, mint)
		},
	)
}

// escrowMake accounts: maker, maker_ata_x, escrow_ata_x, escrow_ata_y,
// escrow, mint_x, mint_y, config, token_program, system_program,
// associated_token_program.
func escrowMake(ctx *ledger.InvokeContext, accounts []*ledger.AccountView, ix EscrowMake) error {
	if err := checkAccounts(accounts, 11); err != nil {
		return err
	}
	maker, makerATAX, escrowATAX, escrowATAY := accounts[0], accounts[1], accounts[2], accounts[3]
	escrow, mintX, mintY, config := accounts[4], accounts[5], accounts[6], accounts[7]
	rent := ctx.Rent()
	programID := ctx.ProgramID()

	if err := checkSigner(maker); err != nil {
		return err
	}
	if err := checkWritable(maker, makerATAX, escrowATAX, escrow); err != nil {
		return err
	}
	if err := checkPrograms(accounts[8], accounts[9], accounts[10]); err != nil {
		return err
	}
	if err := checkNonZero(ix.AmountX, ix.AmountY); err != nil {
		return err
	}
	if mintX.Key() == mintY.Key() {
		return ErrSameMints
	}

	cfg, err := loadConfig(programID, config)
	if err != nil {
		return err
	}
	if err := checkTradeable(cfg, mintX.Key(), mintY.Key()); err != nil {
		return err
	}
	if _, err := checkMint(rent, mintX, &ix.DecimalX); err != nil {
		return err
	}
	if _, err := checkMint(rent, mintY, &ix.DecimalY); err != nil {
		return err
	}

	source, err := checkAssociated(rent, makerATAX, maker.Key(), mintX.Key())
	if err != nil {
		return err
	}
	if err := checkBalance(source, ix.AmountX); err != nil {
		return err
	}

	escrowAddr, bump, err := EscrowAddress(programID, maker.Key(), ix.ID)
	if err != nil {
		return ErrEscrowAddress
	}
	if err := checkAddress(escrow, escrowAddr, ErrEscrowAddress); err != nil {
		return err
	}
	if escrow.Lamports() > 0 || !escrow.IsEmpty() {
		return ErrAlreadyInitialized
	}
	if err := checkAssociatedAddress(escrowATAX, escrow.Key(), mintX.Key()); err != nil {
		return err
	}
	// Proceeds of an earlier offer at this address must be withdrawn before
	// the address is reused, or the new offer could never be canceled.
	if err := checkAssociatedAddress(escrowATAY, escrow.Key(), mintY.Key()); err != nil {
		return err
	}
	if escrowATAY.Lamports() > 0 || !escrowATAY.IsEmpty() {
		return ErrProceedsPending
	}

	auth := escrowAuthority(maker.Key(), ix.ID, bump)
	if err := createPDA(ctx, maker, escrow, EscrowLen, auth); err != nil {
		return err
	}
	if _, err := ensureAssociated(ctx, maker, escrowATAX, escrow, mintX); err != nil {
		return err
	}
	if err := transferTokens(ctx, makerATAX, mintX, escrowATAX, maker, ix.AmountX, ix.DecimalX); err != nil {
		return err
	}

	// The record is written only once the vault holds the funds.
	rec := &Escrow{
		Maker:    maker.Key(),
		MintX:    mintX.Key(),
		MintY:    mintY.Key(),
		AmountX:  ix.AmountX,
		AmountY:  ix.AmountY,
		ID:       ix.ID,
		DecimalX: ix.DecimalX,
		DecimalY: ix.DecimalY,
		Bump:     bump,
		Config:   config.Key(),
	}
	rec.Encode(escrow.Data())

	ctx.Log("escrow_make escrow=%s maker=%s id=%d mint_x=%s mint_y=%s amount_x=%d amount_y=%d decimal_x=%d decimal_y=%d",
		escrow.Key(), rec.Maker, rec.ID, rec.MintX, rec.MintY, rec.AmountX, rec.AmountY, rec.DecimalX, rec.DecimalY)
	return nil
}

// matchRecord cross-validates taker-supplied fields against the record.
func matchRecord(rec *Escrow, ix EscrowTake, mintX, mintY *ledger.AccountView) error {
	switch {
	case rec.MintX != mintX.Key():
		return ErrEscrowMintX
	case rec.MintY != mintY.Key():
		return ErrEscrowMintY
	case rec.ID != ix.ID:
		return ErrEscrowID
	case rec.AmountX != ix.AmountX || rec.AmountY != ix.AmountY:
		return ErrEscrowAmount
	case rec.DecimalX != ix.DecimalX || rec.DecimalY != ix.DecimalY:
		return ErrEscrowDecimals
	}
	return nil
}

// escrowTake accounts: taker, maker, taker_ata_x, taker_ata_y, escrow_ata_x,
// escrow_ata_y, mint_x, mint_y, escrow, config, token_program,
// system_program, associated_token_program.
func escrowTake(ctx *ledger.InvokeContext, accounts []*ledger.AccountView, ix EscrowTake) error {
	if err := checkAccounts(accounts, 13); err != nil {
		return err
	}
	taker, maker := accounts[0], accounts[1]
	takerATAX, takerATAY, escrowATAX, escrowATAY := accounts[2], accounts[3], accounts[4], accounts[5]
	mintX, mintY, escrow, config := accounts[6], accounts[7], accounts[8], accounts[9]
	rent := ctx.Rent()
	programID := ctx.ProgramID()

	if err := checkSigner(taker); err != nil {
		return err
	}
	if err := checkWritable(taker, maker, takerATAX, takerATAY, escrowATAX, escrowATAY, escrow); err != nil {
		return err
	}
	if err := checkPrograms(accounts[10], accounts[11], accounts[12]); err != nil {
		return err
	}
	if err := checkNonZero(ix.AmountX, ix.AmountY); err != nil {
		return err
	}

	rec, err := loadEscrow(programID, escrow)
	if err != nil {
		return err
	}
	if err := matchRecord(rec, ix, mintX, mintY); err != nil {
		return err
	}
	expected, _, err := EscrowAddress(programID, rec.Maker, ix.ID)
	if err != nil {
		return ErrEscrowAddress
	}
	if err := checkAddress(escrow, expected, ErrEscrowAddress); err != nil {
		return err
	}
	if maker.Key() != rec.Maker {
		return ErrEscrowMaker
	}
	if config.Key() != rec.Config {
		return ErrEscrowConfig
	}

	cfg, err := loadConfig(programID, config)
	if err != nil {
		return err
	}
	if err := checkTradeable(cfg, rec.MintX, rec.MintY); err != nil {
		return err
	}
	if _, err := checkMint(rent, mintX, &rec.DecimalX); err != nil {
		return err
	}
	if _, err := checkMint(rent, mintY, &rec.DecimalY); err != nil {
		return err
	}

	payment, err := checkAssociated(rent, takerATAY, taker.Key(), mintY.Key())
	if err != nil {
		return err
	}
	if err := checkBalance(payment, rec.AmountY); err != nil {
		return err
	}
	locked, err := checkAssociated(rent, escrowATAX, escrow.Key(), mintX.Key())
	if err != nil {
		return err
	}
	if err := checkBalance(locked, rec.AmountX); err != nil {
		return err
	}
	if err := checkAssociatedAddress(escrowATAY, escrow.Key(), mintY.Key()); err != nil {
		return err
	}
	if err := checkAssociatedAddress(takerATAX, taker.Key(), mintX.Key()); err != nil {
		return err
	}

	if _, err := ensureAssociated(ctx, taker, escrowATAY, escrow, mintY); err != nil {
		return err
	}
	if _, err := ensureAssociated(ctx, taker, takerATAX, taker, mintX); err != nil {
		return err
	}

	auth := escrowAuthority(rec.Maker, rec.ID, rec.Bump)
	if err := transferTokens(ctx, takerATAY, mintY, escrowATAY, taker, rec.AmountY, rec.DecimalY); err != nil {
		return err
	}
	if err := transferTokens(ctx, escrowATAX, mintX, takerATAX, escrow, rec.AmountX, rec.DecimalX, auth); err != nil {
		return err
	}

	// Settled: vault X is released when empty, the record always.
	if tokenBalance(escrowATAX) == 0 {
		if err := closeTokenAccount(ctx, escrowATAX, maker, escrow, auth); err != nil {
			return err
		}
	}
	if err := closeRecord(escrow, maker); err != nil {
		return err
	}

	ctx.Log("escrow_take escrow=%s maker=%s taker=%s id=%d amount_x=%d amount_y=%d",
		escrow.Key(), rec.Maker, taker.Key(), rec.ID, rec.AmountX, rec.AmountY)
	return nil
}

// escrowWithdraw accounts: maker, maker_ata_y, escrow_ata_y, mint_y, escrow,
// token_program, system_program, associated_token_program.
func escrowWithdraw(ctx *ledger.InvokeContext, accounts []*ledger.AccountView, ix EscrowWithdraw) error {
	if err := checkAccounts(accounts, 8); err != nil {
		return err
	}
	maker, makerATAY, escrowATAY, mintY, escrow := accounts[0], accounts[1], accounts[2], accounts[3], accounts[4]
	rent := ctx.Rent()
	programID := ctx.ProgramID()

	if err := checkSigner(maker); err != nil {
		return err
	}
	if err := checkWritable(maker, makerATAY, escrowATAY); err != nil {
		return err
	}
	if err := checkPrograms(accounts[5], accounts[6], accounts[7]); err != nil {
		return err
	}

	expected, bump, err := EscrowAddress(programID, maker.Key(), ix.ID)
	if err != nil {
		return ErrEscrowAddress
	}
	if err := checkAddress(escrow, expected, ErrEscrowAddress); err != nil {
		return err
	}
	if escrow.Lamports() > 0 || !escrow.IsEmpty() {
		return ErrEscrowNotSettled
	}
	mint, err := checkMint(rent, mintY, nil)
	if err != nil {
		return err
	}
	if escrowATAY.IsEmpty() {
		return ErrNotInitialized
	}
	proceeds, err := checkAssociated(rent, escrowATAY, escrow.Key(), mintY.Key())
	if err != nil {
		return err
	}
	if err := checkAssociatedAddress(makerATAY, maker.Key(), mintY.Key()); err != nil {
		return err
	}

	if _, err := ensureAssociated(ctx, maker, makerATAY, maker, mintY); err != nil {
		return err
	}
	auth := escrowAuthority(maker.Key(), ix.ID, bump)
	if proceeds.Amount > 0 {
		if err := transferTokens(ctx, escrowATAY, mintY, makerATAY, escrow, proceeds.Amount, mint.Decimals, auth); err != nil {
			return err
		}
	}
	if err := closeTokenAccount(ctx, escrowATAY, maker, escrow, auth); err != nil {
		return err
	}

	ctx.Log("escrow_withdraw escrow=%s maker=%s id=%d mint_y=%s amount_y=%d",
		escrow.Key(), maker.Key(), ix.ID, mintY.Key(), proceeds.Amount)
	return nil
}

// escrowCancel accounts: maker, maker_ata_x, maker_ata_y, escrow_ata_x,
// escrow_ata_y, mint_x, mint_y, escrow, config, token_program,
// system_program, associated_token_program.
func escrowCancel(ctx *ledger.InvokeContext, accounts []*ledger.AccountView) error {
	if err := checkAccounts(accounts, 12); err != nil {
		return err
	}
	maker, makerATAX, makerATAY := accounts[0], accounts[1], accounts[2]
	escrowATAX, escrowATAY := accounts[3], accounts[4]
	mintX, mintY, escrow, config := accounts[5], accounts[6], accounts[7], accounts[8]
	rent := ctx.Rent()
	programID := ctx.ProgramID()

	if err := checkSigner(maker); err != nil {
		return err
	}
	if err := checkWritable(maker, makerATAX, makerATAY, escrowATAX, escrowATAY, escrow); err != nil {
		return err
	}
	if err := checkPrograms(accounts[9], accounts[10], accounts[11]); err != nil {
		return err
	}

	rec, err := loadEscrow(programID, escrow)
	if err != nil {
		return err
	}
	if maker.Key() != rec.Maker {
		return ErrOnlyMaker
	}
	expected, _, err := EscrowAddress(programID, rec.Maker, rec.ID)
	if err != nil {
		return ErrEscrowAddress
	}
	if err := checkAddress(escrow, expected, ErrEscrowAddress); err != nil {
		return err
	}
	if rec.MintX != mintX.Key() {
		return ErrEscrowMintX
	}
	if rec.MintY != mintY.Key() {
		return ErrEscrowMintY
	}
	if err := checkNonZero(rec.AmountY); err != nil {
		return err
	}
	if _, err := checkMint(rent, mintX, &rec.DecimalX); err != nil {
		return err
	}
	if _, err := checkMint(rent, mintY, &rec.DecimalY); err != nil {
		return err
	}
	// Only the binding is checked: a paused or closed desk never traps
	// the maker's deposit.
	if config.Key() != rec.Config {
		return ErrEscrowConfig
	}

	locked, err := checkAssociated(rent, escrowATAX, escrow.Key(), mintX.Key())
	if err != nil {
		return err
	}
	var strayY uint64
	if escrowATAY.IsEmpty() {
		if err := checkAssociatedAddress(escrowATAY, escrow.Key(), mintY.Key()); err != nil {
			return err
		}
	} else {
		vaultY, err := checkAssociated(rent, escrowATAY, escrow.Key(), mintY.Key())
		if err != nil {
			return err
		}
		if vaultY.Amount >= rec.AmountY {
			return ErrPendingTake
		}
		strayY = vaultY.Amount
	}
	if err := checkAssociatedAddress(makerATAX, maker.Key(), mintX.Key()); err != nil {
		return err
	}
	if err := checkAssociatedAddress(makerATAY, maker.Key(), mintY.Key()); err != nil {
		return err
	}

	auth := escrowAuthority(rec.Maker, rec.ID, rec.Bump)
	if _, err := ensureAssociated(ctx, maker, makerATAX, maker, mintX); err != nil {
		return err
	}
	if locked.Amount > 0 {
		if err := transferTokens(ctx, escrowATAX, mintX, makerATAX, escrow, locked.Amount, rec.DecimalX, auth); err != nil {
			return err
		}
	}
	if !escrowATAY.IsEmpty() {
		if strayY > 0 {
			if _, err := ensureAssociated(ctx, maker, makerATAY, maker, mintY); err != nil {
				return err
			}
			if err := transferTokens(ctx, escrowATAY, mintY, makerATAY, escrow, strayY, rec.DecimalY, auth); err != nil {
				return err
			}
		}
		if err := closeTokenAccount(ctx, escrowATAY, maker, escrow, auth); err != nil {
			return err
		}
	}
	if err := closeTokenAccount(ctx, escrowATAX, maker, escrow, auth); err != nil {
		return err
	}
	if err := closeRecord(escrow, maker); err != nil {
		return err
	}

	ctx.Log("escrow_cancel escrow=%s maker=%s id=%d amount_x=%d stray_y=%d",
		escrow.Key(), rec.Maker, rec.ID, locked.Amount, strayY)
	return nil
}
