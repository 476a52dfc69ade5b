package program

import (
	"encoding/binary"
	"fmt"
)

// Discriminators.
const (
	DiscInitConfig     uint8 = 12
	DiscUpdateConfig   uint8 = 13
	DiscCloseConfig    uint8 = 14
	DiscEscrowMake     uint8 = 15
	DiscEscrowTake     uint8 = 16
	DiscEscrowWithdraw uint8 = 17
	DiscEscrowCancel   uint8 = 18
	DiscResizeConfig   uint8 = 19
)

// Payload sizes, discriminator excluded.
const (
	initConfigLen   = 1 + 1 + 8 + 32
	updateConfigLen = 4 + 4 + 4*4 + 4*8 + 32
	tradeLen        = 1 + 8 + 1 + 8 + 8
	withdrawLen     = 8
	resizeLen       = 8
)

// Instruction is the decoded form of one call into the program.
type Instruction interface {
	Discriminator() uint8
	payload() []byte
}

// InitConfig creates the config record and vault of the program owner.
type InitConfig struct {
	IsAuthorized bool
	Status       Status
	Fee          uint64
	Label        [32]byte
}

// UpdateConfig mutates one field group picked by U8s[0].
type UpdateConfig struct {
	Bools [4]bool
	U8s   [4]uint8
	U32s  [4]uint32
	U64s  [4]uint64
	Label [32]byte
}

// Update selectors carried in UpdateConfig.U8s[0].
const (
	SelectStatus uint8 = iota
	SelectFee
	SelectAdmin
	SelectOwner
)

// CloseConfig invalidates the config record and sweeps its balance.
type CloseConfig struct{}

// ResizeConfig changes the config record size.
type ResizeConfig struct {
	NewSize uint64
}

// EscrowMake opens an offer of AmountX for AmountY.
type EscrowMake struct {
	DecimalX uint8
	AmountX  uint64
	DecimalY uint8
	AmountY  uint64
	ID       uint64
}

// EscrowTake settles an offer; every field must match the record.
type EscrowTake struct {
	DecimalX uint8
	AmountX  uint64
	DecimalY uint8
	AmountY  uint64
	ID       uint64
}

// EscrowWithdraw moves settled Y proceeds to the maker.
type EscrowWithdraw struct {
	ID uint64
}

// EscrowCancel returns the locked X and tears the offer down.
type EscrowCancel struct{}

func (InitConfig) Discriminator() uint8     { return DiscInitConfig }
func (UpdateConfig) Discriminator() uint8   { return DiscUpdateConfig }
func (CloseConfig) Discriminator() uint8    { return DiscCloseConfig }
func (ResizeConfig) Discriminator() uint8   { return DiscResizeConfig }
func (EscrowMake) Discriminator() uint8     { return DiscEscrowMake }
func (EscrowTake) Discriminator() uint8     { return DiscEscrowTake }
func (EscrowWithdraw) Discriminator() uint8 { return DiscEscrowWithdraw }
func (EscrowCancel) Discriminator() uint8   { return DiscEscrowCancel }

// Encode serializes ix with its leading discriminator.
func Encode(ix Instruction) []byte {
	return append([]byte{ix.Discriminator()}, ix.payload()...)
}

// Decode parses instruction data. Unknown discriminators fail with
// ErrInvalidDiscriminator, malformed payloads with ErrInputDataLen.
func Decode(data []byte) (Instruction, error) {
	if len(data) == 0 {
		return nil, ErrInvalidDiscriminator
	}
	disc, p := data[0], data[1:]
	switch disc {
	case DiscInitConfig:
		return decodeInitConfig(p)
	case DiscUpdateConfig:
		return decodeUpdateConfig(p)
	case DiscCloseConfig:
		if len(p) != 0 {
			return nil, ErrInputDataLen
		}
		return CloseConfig{}, nil
	case DiscResizeConfig:
		if len(p) != resizeLen {
			return nil, ErrInputDataLen
		}
		return ResizeConfig{NewSize: binary.LittleEndian.Uint64(p)}, nil
	case DiscEscrowMake:
		t, err := decodeTrade(p)
		if err != nil {
			return nil, err
		}
		return EscrowMake(t), nil
	case DiscEscrowTake:
		t, err := decodeTrade(p)
		if err != nil {
			return nil, err
		}
		return EscrowTake(t), nil
	case DiscEscrowWithdraw:
		if len(p) != withdrawLen {
			return nil, ErrInputDataLen
		}
		return EscrowWithdraw{ID: binary.LittleEndian.Uint64(p)}, nil
	case DiscEscrowCancel:
		if len(p) != 0 {
			return nil, ErrInputDataLen
		}
		return EscrowCancel{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidDiscriminator, disc)
	}
}

func decodeInitConfig(p []byte) (InitConfig, error) {
	var ix InitConfig
	if len(p) != initConfigLen {
		return ix, ErrInputDataLen
	}
	var err error
	if ix.IsAuthorized, err = parseBool(p[0]); err != nil {
		return ix, err
	}
	if ix.Status, err = ParseStatus(p[1]); err != nil {
		return ix, err
	}
	ix.Fee = binary.LittleEndian.Uint64(p[2:10])
	copy(ix.Label[:], p[10:42])
	return ix, nil
}

func (ix InitConfig) payload() []byte {
	p := make([]byte, initConfigLen)
	p[0] = boolByte(ix.IsAuthorized)
	p[1] = uint8(ix.Status)
	binary.LittleEndian.PutUint64(p[2:10], ix.Fee)
	copy(p[10:42], ix.Label[:])
	return p
}

func decodeUpdateConfig(p []byte) (UpdateConfig, error) {
	var ix UpdateConfig
	if len(p) != updateConfigLen {
		return ix, ErrInputDataLen
	}
	for i := range ix.Bools {
		b, err := parseBool(p[i])
		if err != nil {
			return ix, err
		}
		ix.Bools[i] = b
	}
	copy(ix.U8s[:], p[4:8])
	for i := range ix.U32s {
		ix.U32s[i] = binary.LittleEndian.Uint32(p[8+i*4:])
	}
	for i := range ix.U64s {
		ix.U64s[i] = binary.LittleEndian.Uint64(p[24+i*8:])
	}
	copy(ix.Label[:], p[56:88])
	return ix, nil
}

func (ix UpdateConfig) payload() []byte {
	p := make([]byte, updateConfigLen)
	for i, b := range ix.Bools {
		p[i] = boolByte(b)
	}
	copy(p[4:8], ix.U8s[:])
	for i, v := range ix.U32s {
		binary.LittleEndian.PutUint32(p[8+i*4:], v)
	}
	for i, v := range ix.U64s {
		binary.LittleEndian.PutUint64(p[24+i*8:], v)
	}
	copy(p[56:88], ix.Label[:])
	return p
}

func (CloseConfig) payload() []byte  { return nil }
func (EscrowCancel) payload() []byte { return nil }

func (ix ResizeConfig) payload() []byte {
	return binary.LittleEndian.AppendUint64(nil, ix.NewSize)
}

func (ix EscrowWithdraw) payload() []byte {
	return binary.LittleEndian.AppendUint64(nil, ix.ID)
}

func decodeTrade(p []byte) (EscrowMake, error) {
	var t EscrowMake
	if len(p) != tradeLen {
		return t, ErrInputDataLen
	}
	t.DecimalX = p[0]
	t.AmountX = binary.LittleEndian.Uint64(p[1:9])
	t.DecimalY = p[9]
	t.AmountY = binary.LittleEndian.Uint64(p[10:18])
	t.ID = binary.LittleEndian.Uint64(p[18:26])
	return t, nil
}

func encodeTrade(t EscrowMake) []byte {
	p := make([]byte, tradeLen)
	p[0] = t.DecimalX
	binary.LittleEndian.PutUint64(p[1:9], t.AmountX)
	p[9] = t.DecimalY
	binary.LittleEndian.PutUint64(p[10:18], t.AmountY)
	binary.LittleEndian.PutUint64(p[18:26], t.ID)
	return p
}

func (ix EscrowMake) payload() []byte { return encodeTrade(ix) }
func (ix EscrowTake) payload() []byte { return encodeTrade(EscrowMake(ix)) }
