package ledger

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/mr-tron/base58"

	"solana-escrow-lab/internal/solana"
)

// MaxTransactionSize bounds an encoded signed transaction, matching the
// Solana packet data size.
const MaxTransactionSize = 1232

const (
	flagSigner   = 1 << 0
	flagWritable = 1 << 1
)

// Wire format errors.
var (
	ErrMalformedTransaction = errors.New("malformed transaction")
	ErrTransactionTooLarge  = errors.New("transaction too large")
	ErrSignatureCount       = errors.New("signature count does not match signers")
	ErrSignatureInvalid     = errors.New("signature verification failed")
)

// Message is the signed portion of a transaction. Nonce distinguishes
// otherwise identical messages so each gets a unique signature.
type Message struct {
	Nonce        uint64
	Signers      []solana.PublicKey
	Instructions []Instruction
}

// Encode serializes m:
//
//	nonce u64 | n_signers u8 | signers [32]... |
//	n_ix u8 | { program [32] | n_accounts u8 | { key [32] | flags u8 }... | data_len u16 | data }...
func (m *Message) Encode() ([]byte, error) {
	if len(m.Signers) > math.MaxUint8 || len(m.Instructions) > math.MaxUint8 {
		return nil, fmt.Errorf("%w: too many signers or instructions", ErrTransactionTooLarge)
	}

	buf := make([]byte, 0, 256)
	buf = binary.LittleEndian.AppendUint64(buf, m.Nonce)
	buf = append(buf, byte(len(m.Signers)))
	for _, s := range m.Signers {
		buf = append(buf, s[:]...)
	}

	buf = append(buf, byte(len(m.Instructions)))
	for _, ix := range m.Instructions {
		if len(ix.Accounts) > math.MaxUint8 || len(ix.Data) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: instruction too large", ErrTransactionTooLarge)
		}
		buf = append(buf, ix.ProgramID[:]...)
		buf = append(buf, byte(len(ix.Accounts)))
		for _, meta := range ix.Accounts {
			var flags byte
			if meta.IsSigner {
				flags |= flagSigner
			}
			if meta.IsWritable {
				flags |= flagWritable
			}
			buf = append(buf, meta.PublicKey[:]...)
			buf = append(buf, flags)
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(ix.Data)))
		buf = append(buf, ix.Data...)
	}
	return buf, nil
}

// reader consumes a byte slice, remembering the first short read.
type reader struct {
	b   []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b) < n {
		r.err = fmt.Errorf("%w: unexpected end of data", ErrMalformedTransaction)
		return nil
	}
	out := r.b[:n]
	r.b = r.b[n:]
	return out
}

func (r *reader) u8() byte {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) key() solana.PublicKey {
	var pk solana.PublicKey
	copy(pk[:], r.take(solana.PublicKeyLength))
	return pk
}

func decodeMessage(r *reader) Message {
	var m Message
	if b := r.take(8); b != nil {
		m.Nonce = binary.LittleEndian.Uint64(b)
	}

	n := int(r.u8())
	for i := 0; i < n && r.err == nil; i++ {
		m.Signers = append(m.Signers, r.key())
	}

	n = int(r.u8())
	for i := 0; i < n && r.err == nil; i++ {
		ix := Instruction{ProgramID: r.key()}
		accounts := int(r.u8())
		for j := 0; j < accounts && r.err == nil; j++ {
			key := r.key()
			flags := r.u8()
			if flags&^(flagSigner|flagWritable) != 0 {
				r.err = fmt.Errorf("%w: account flags %#x", ErrMalformedTransaction, flags)
			}
			ix.Accounts = append(ix.Accounts, AccountMeta{
				PublicKey:  key,
				IsSigner:   flags&flagSigner != 0,
				IsWritable: flags&flagWritable != 0,
			})
		}
		var dataLen int
		if b := r.take(2); b != nil {
			dataLen = int(binary.LittleEndian.Uint16(b))
		}
		if dataLen > 0 {
			ix.Data = append([]byte(nil), r.take(dataLen)...)
		}
		m.Instructions = append(m.Instructions, ix)
	}
	return m
}

// SignedTransaction is a message plus one ed25519 signature per signer, in signer order.
type SignedTransaction struct {
	Signatures [][ed25519.SignatureSize]byte
	Message    Message
}

// SignTransaction signs m with keys, which must be given in m.Signers order.
func SignTransaction(m Message, keys ...ed25519.PrivateKey) (*SignedTransaction, error) {
	if len(keys) != len(m.Signers) {
		return nil, ErrSignatureCount
	}
	msg, err := m.Encode()
	if err != nil {
		return nil, err
	}

	tx := &SignedTransaction{Message: m}
	for i, key := range keys {
		pub, ok := key.Public().(ed25519.PublicKey)
		if !ok || solana.PublicKey(pub) != m.Signers[i] {
			return nil, fmt.Errorf("key %d does not match signer %s", i, m.Signers[i])
		}
		var sig [ed25519.SignatureSize]byte
		copy(sig[:], ed25519.Sign(key, msg))
		tx.Signatures = append(tx.Signatures, sig)
	}
	return tx, nil
}

// Signature is the transaction id: the base58 first signature.
func (t *SignedTransaction) Signature() string {
	if len(t.Signatures) == 0 {
		return ""
	}
	return base58.Encode(t.Signatures[0][:])
}

// Encode serializes t as n_sigs u8 | sigs [64]... | message.
func (t *SignedTransaction) Encode() ([]byte, error) {
	msg, err := t.Message.Encode()
	if err != nil {
		return nil, err
	}
	if len(t.Signatures) > math.MaxUint8 {
		return nil, ErrTransactionTooLarge
	}

	buf := make([]byte, 0, 1+len(t.Signatures)*ed25519.SignatureSize+len(msg))
	buf = append(buf, byte(len(t.Signatures)))
	for _, sig := range t.Signatures {
		buf = append(buf, sig[:]...)
	}
	buf = append(buf, msg...)
	if len(buf) > MaxTransactionSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTransactionTooLarge, len(buf))
	}
	return buf, nil
}

// DecodeTransaction parses an encoded signed transaction. It does not verify signatures.
func DecodeTransaction(data []byte) (*SignedTransaction, error) {
	if len(data) > MaxTransactionSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTransactionTooLarge, len(data))
	}

	r := &reader{b: data}
	tx := &SignedTransaction{}
	n := int(r.u8())
	for i := 0; i < n && r.err == nil; i++ {
		var sig [ed25519.SignatureSize]byte
		copy(sig[:], r.take(ed25519.SignatureSize))
		tx.Signatures = append(tx.Signatures, sig)
	}
	tx.Message = decodeMessage(r)

	if r.err != nil {
		return nil, r.err
	}
	if len(r.b) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedTransaction, len(r.b))
	}
	return tx, nil
}

// Verify checks every signature against its signer and returns the
// executable transaction.
func (t *SignedTransaction) Verify() (*Transaction, error) {
	if len(t.Signatures) == 0 || len(t.Signatures) != len(t.Message.Signers) {
		return nil, ErrSignatureCount
	}
	msg, err := t.Message.Encode()
	if err != nil {
		return nil, err
	}
	for i, signer := range t.Message.Signers {
		if !ed25519.Verify(ed25519.PublicKey(signer[:]), msg, t.Signatures[i][:]) {
			return nil, fmt.Errorf("%w: signer %s", ErrSignatureInvalid, signer)
		}
	}
	return &Transaction{
		Signers:      t.Message.Signers,
		Instructions: t.Message.Instructions,
	}, nil
}
