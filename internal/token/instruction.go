package token

import (
	"encoding/binary"

	"solana-escrow-lab/internal/ledger"
	"solana-escrow-lab/internal/solana"
)

// Instruction tags, as on the wire.
const (
	TagTransfer           uint8 = 3
	TagCloseAccount       uint8 = 9
	TagTransferChecked    uint8 = 12
	TagMintToChecked      uint8 = 14
	TagInitializeAccount3 uint8 = 18
	TagInitializeMint2    uint8 = 20
)

// InitializeMint2 initializes a pre-allocated mint.
func InitializeMint2(mint, authority solana.PublicKey, freeze *solana.PublicKey, decimals uint8) ledger.Instruction {
	data := make([]byte, 0, 1+1+32+1+32)
	data = append(data, TagInitializeMint2, decimals)
	data = append(data, authority[:]...)
	if freeze != nil {
		data = append(data, 1)
		data = append(data, freeze[:]...)
	} else {
		data = append(data, 0)
	}
	return ledger.Instruction{
		ProgramID: solana.TokenProgramID,
		Accounts:  []ledger.AccountMeta{ledger.Writable(mint)},
		Data:      data,
	}
}

// InitializeAccount3 initializes a pre-allocated token account for owner.
func InitializeAccount3(account, mint, owner solana.PublicKey) ledger.Instruction {
	data := make([]byte, 0, 1+32)
	data = append(data, TagInitializeAccount3)
	data = append(data, owner[:]...)
	return ledger.Instruction{
		ProgramID: solana.TokenProgramID,
		Accounts:  []ledger.AccountMeta{ledger.Writable(account), ledger.ReadOnly(mint)},
		Data:      data,
	}
}

// TransferChecked moves amount from src to dst, asserting the mint decimals.
func TransferChecked(src, mint, dst, authority solana.PublicKey, amount uint64, decimals uint8) ledger.Instruction {
	data := make([]byte, 1+8+1)
	data[0] = TagTransferChecked
	binary.LittleEndian.PutUint64(data[1:9], amount)
	data[9] = decimals
	return ledger.Instruction{
		ProgramID: solana.TokenProgramID,
		Accounts: []ledger.AccountMeta{
			ledger.Writable(src),
			ledger.ReadOnly(mint),
			ledger.Writable(dst),
			ledger.ReadOnlySigner(authority),
		},
		Data: data,
	}
}

// MintToChecked mints amount into dst.
func MintToChecked(mint, dst, authority solana.PublicKey, amount uint64, decimals uint8) ledger.Instruction {
	data := make([]byte, 1+8+1)
	data[0] = TagMintToChecked
	binary.LittleEndian.PutUint64(data[1:9], amount)
	data[9] = decimals
	return ledger.Instruction{
		ProgramID: solana.TokenProgramID,
		Accounts: []ledger.AccountMeta{
			ledger.Writable(mint),
			ledger.Writable(dst),
			ledger.ReadOnlySigner(authority),
		},
		Data: data,
	}
}

// CloseAccount closes an empty token account, crediting its rent to dest.
func CloseAccount(account, dest, authority solana.PublicKey) ledger.Instruction {
	return ledger.Instruction{
		ProgramID: solana.TokenProgramID,
		Accounts: []ledger.AccountMeta{
			ledger.Writable(account),
			ledger.Writable(dest),
			ledger.ReadOnlySigner(authority),
		},
		Data: []byte{TagCloseAccount},
	}
}
