package program

import (
	"fmt"

	"solana-escrow-lab/internal/ledger"
	"solana-escrow-lab/internal/solana"
	"solana-escrow-lab/internal/token"
)

// Builders assemble ledger instructions with the account order each
// handler expects. Derived addresses are computed here so callers pass
// only wallets and mints.

var collaborators = []ledger.AccountMeta{
	ledger.ReadOnly(solana.TokenProgramID),
	ledger.ReadOnly(solana.SystemProgramID),
	ledger.ReadOnly(solana.AssociatedTokenProgramID),
}

func instruction(programID solana.PublicKey, ix Instruction, metas ...ledger.AccountMeta) ledger.Instruction {
	return ledger.Instruction{ProgramID: programID, Accounts: metas, Data: Encode(ix)}
}

func ata(wallet, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := token.FindAssociatedAddress(wallet, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("associated address of %s for %s: %w", wallet, mint, err)
	}
	return addr, nil
}

// NewInitConfig builds InitConfig. Unused allow-list slots are zero keys.
func NewInitConfig(programID, signer, progOwner, admin solana.PublicKey, mints [4]solana.PublicKey, args InitConfig) (ledger.Instruction, error) {
	config, _, err := ConfigAddress(programID, progOwner)
	if err != nil {
		return ledger.Instruction{}, err
	}
	vault, _, err := VaultAddress(programID, progOwner)
	if err != nil {
		return ledger.Instruction{}, err
	}
	metas := []ledger.AccountMeta{ledger.Signer(signer), ledger.Writable(config)}
	for _, m := range mints {
		metas = append(metas, ledger.ReadOnly(m))
	}
	metas = append(metas,
		ledger.Writable(vault),
		ledger.ReadOnlySigner(progOwner),
		ledger.ReadOnly(admin),
		ledger.ReadOnly(solana.SystemProgramID),
	)
	return instruction(programID, args, metas...), nil
}

// NewUpdateConfig builds UpdateConfig against the config of configOwner.
func NewUpdateConfig(programID, authority, configOwner, account1, account2 solana.PublicKey, args UpdateConfig) (ledger.Instruction, error) {
	config, _, err := ConfigAddress(programID, configOwner)
	if err != nil {
		return ledger.Instruction{}, err
	}
	return instruction(programID, args,
		ledger.ReadOnlySigner(authority),
		ledger.Writable(config),
		ledger.ReadOnly(account1),
		ledger.ReadOnly(account2),
	), nil
}

// NewResizeConfig builds ResizeConfig.
func NewResizeConfig(programID, authority, configOwner solana.PublicKey, newSize uint64) (ledger.Instruction, error) {
	config, _, err := ConfigAddress(programID, configOwner)
	if err != nil {
		return ledger.Instruction{}, err
	}
	return instruction(programID, ResizeConfig{NewSize: newSize},
		ledger.Signer(authority),
		ledger.Writable(config),
		ledger.ReadOnly(solana.SystemProgramID),
	), nil
}

// NewCloseConfig builds CloseConfig sweeping the balance to dest.
func NewCloseConfig(programID, authority, configOwner, dest solana.PublicKey) (ledger.Instruction, error) {
	config, _, err := ConfigAddress(programID, configOwner)
	if err != nil {
		return ledger.Instruction{}, err
	}
	return instruction(programID, CloseConfig{},
		ledger.ReadOnlySigner(authority),
		ledger.Writable(config),
		ledger.Writable(dest),
	), nil
}

// NewEscrowMake builds EscrowMake.
func NewEscrowMake(programID, maker, mintX, mintY, configOwner solana.PublicKey, args EscrowMake) (ledger.Instruction, error) {
	config, _, err := ConfigAddress(programID, configOwner)
	if err != nil {
		return ledger.Instruction{}, err
	}
	escrow, _, err := EscrowAddress(programID, maker, args.ID)
	if err != nil {
		return ledger.Instruction{}, err
	}
	makerATAX, err := ata(maker, mintX)
	if err != nil {
		return ledger.Instruction{}, err
	}
	escrowATAX, err := ata(escrow, mintX)
	if err != nil {
		return ledger.Instruction{}, err
	}
	escrowATAY, err := ata(escrow, mintY)
	if err != nil {
		return ledger.Instruction{}, err
	}
	metas := []ledger.AccountMeta{
		ledger.Signer(maker),
		ledger.Writable(makerATAX),
		ledger.Writable(escrowATAX),
		ledger.ReadOnly(escrowATAY),
		ledger.Writable(escrow),
		ledger.ReadOnly(mintX),
		ledger.ReadOnly(mintY),
		ledger.ReadOnly(config),
	}
	return instruction(programID, args, append(metas, collaborators...)...), nil
}

// NewEscrowTake builds EscrowTake.
func NewEscrowTake(programID, taker, maker, mintX, mintY, configOwner solana.PublicKey, args EscrowTake) (ledger.Instruction, error) {
	config, _, err := ConfigAddress(programID, configOwner)
	if err != nil {
		return ledger.Instruction{}, err
	}
	escrow, _, err := EscrowAddress(programID, maker, args.ID)
	if err != nil {
		return ledger.Instruction{}, err
	}
	var addrs [4]solana.PublicKey
	for i, pair := range [][2]solana.PublicKey{{taker, mintX}, {taker, mintY}, {escrow, mintX}, {escrow, mintY}} {
		if addrs[i], err = ata(pair[0], pair[1]); err != nil {
			return ledger.Instruction{}, err
		}
	}
	metas := []ledger.AccountMeta{
		ledger.Signer(taker),
		ledger.Writable(maker),
		ledger.Writable(addrs[0]),
		ledger.Writable(addrs[1]),
		ledger.Writable(addrs[2]),
		ledger.Writable(addrs[3]),
		ledger.ReadOnly(mintX),
		ledger.ReadOnly(mintY),
		ledger.Writable(escrow),
		ledger.ReadOnly(config),
	}
	return instruction(programID, args, append(metas, collaborators...)...), nil
}

// NewEscrowWithdraw builds EscrowWithdraw.
func NewEscrowWithdraw(programID, maker, mintY solana.PublicKey, id uint64) (ledger.Instruction, error) {
	escrow, _, err := EscrowAddress(programID, maker, id)
	if err != nil {
		return ledger.Instruction{}, err
	}
	makerATAY, err := ata(maker, mintY)
	if err != nil {
		return ledger.Instruction{}, err
	}
	escrowATAY, err := ata(escrow, mintY)
	if err != nil {
		return ledger.Instruction{}, err
	}
	metas := []ledger.AccountMeta{
		ledger.Signer(maker),
		ledger.Writable(makerATAY),
		ledger.Writable(escrowATAY),
		ledger.ReadOnly(mintY),
		ledger.ReadOnly(escrow),
	}
	return instruction(programID, EscrowWithdraw{ID: id}, append(metas, collaborators...)...), nil
}

// NewEscrowCancel builds EscrowCancel.
func NewEscrowCancel(programID, maker, mintX, mintY, configOwner solana.PublicKey, id uint64) (ledger.Instruction, error) {
	config, _, err := ConfigAddress(programID, configOwner)
	if err != nil {
		return ledger.Instruction{}, err
	}
	escrow, _, err := EscrowAddress(programID, maker, id)
	if err != nil {
		return ledger.Instruction{}, err
	}
	var addrs [4]solana.PublicKey
	for i, pair := range [][2]solana.PublicKey{{maker, mintX}, {maker, mintY}, {escrow, mintX}, {escrow, mintY}} {
		if addrs[i], err = ata(pair[0], pair[1]); err != nil {
			return ledger.Instruction{}, err
		}
	}
	metas := []ledger.AccountMeta{
		ledger.Signer(maker),
		ledger.Writable(addrs[0]),
		ledger.Writable(addrs[1]),
		ledger.Writable(addrs[2]),
		ledger.Writable(addrs[3]),
		ledger.ReadOnly(mintX),
		ledger.ReadOnly(mintY),
		ledger.Writable(escrow),
		ledger.ReadOnly(config),
	}
	return instruction(programID, EscrowCancel{}, append(metas, collaborators...)...), nil
}
