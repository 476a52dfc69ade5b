package program

import (
	"encoding/binary"

	"solana-escrow-lab/internal/solana"
)

// Record sizes.
const (
	ConfigLen = 288
	EscrowLen = 155
	VaultLen  = 16
)

// ClosedTag overwrites the first byte of a record being closed.
const ClosedTag = 0xff

// Status is the config lifecycle flag.
type Status uint8

const (
	StatusWaiting Status = iota
	StatusActive
	StatusExpired
	StatusPaused
	StatusCanceled
)

var statusNames = [...]string{"waiting", "active", "expired", "paused", "canceled"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// ParseStatus validates a status byte.
func ParseStatus(b uint8) (Status, error) {
	if b > uint8(StatusCanceled) {
		return 0, ErrInvalidStatus
	}
	return Status(b), nil
}

// AllowsTrading reports whether new offers and takes are accepted.
func (s Status) AllowsTrading() bool {
	return s != StatusPaused && s != StatusCanceled
}

// Config is the per-owner configuration record.
//
//	0..128   mints[4]
//	128..160 vault
//	160..192 prog_owner
//	192..224 admin
//	224..256 label
//	256..264 fee
//	264..272 sol_balance
//	272..280 token_balance
//	280..284 updated_at
//	284      is_authorized
//	285      status
//	286      vault_bump
//	287      bump
type Config struct {
	Mints        [4]solana.PublicKey
	Vault        solana.PublicKey
	ProgOwner    solana.PublicKey
	Admin        solana.PublicKey
	Label        [32]byte
	Fee          uint64
	SolBalance   uint64
	TokenBalance uint64
	UpdatedAt    uint32
	IsAuthorized bool
	Status       Status
	VaultBump    uint8
	Bump         uint8
}

// DecodeConfig reads a config record. Resized records carry trailing bytes.
func DecodeConfig(data []byte) (*Config, error) {
	if len(data) < ConfigLen {
		return nil, ErrConfigDataLen
	}
	c := &Config{}
	for i := range c.Mints {
		copy(c.Mints[i][:], data[i*32:(i+1)*32])
	}
	copy(c.Vault[:], data[128:160])
	copy(c.ProgOwner[:], data[160:192])
	copy(c.Admin[:], data[192:224])
	copy(c.Label[:], data[224:256])
	c.Fee = binary.LittleEndian.Uint64(data[256:264])
	c.SolBalance = binary.LittleEndian.Uint64(data[264:272])
	c.TokenBalance = binary.LittleEndian.Uint64(data[272:280])
	c.UpdatedAt = binary.LittleEndian.Uint32(data[280:284])

	var err error
	if c.IsAuthorized, err = parseBool(data[284]); err != nil {
		return nil, err
	}
	if c.Status, err = ParseStatus(data[285]); err != nil {
		return nil, err
	}
	c.VaultBump = data[286]
	c.Bump = data[287]
	return c, nil
}

// Encode writes c into the first ConfigLen bytes of dst.
func (c *Config) Encode(dst []byte) {
	_ = dst[ConfigLen-1]
	for i := range c.Mints {
		copy(dst[i*32:(i+1)*32], c.Mints[i][:])
	}
	copy(dst[128:160], c.Vault[:])
	copy(dst[160:192], c.ProgOwner[:])
	copy(dst[192:224], c.Admin[:])
	copy(dst[224:256], c.Label[:])
	binary.LittleEndian.PutUint64(dst[256:264], c.Fee)
	binary.LittleEndian.PutUint64(dst[264:272], c.SolBalance)
	binary.LittleEndian.PutUint64(dst[272:280], c.TokenBalance)
	binary.LittleEndian.PutUint32(dst[280:284], c.UpdatedAt)
	dst[284] = boolByte(c.IsAuthorized)
	dst[285] = uint8(c.Status)
	dst[286] = c.VaultBump
	dst[287] = c.Bump
}

// Allows reports whether mint is on the allow-list. Zero entries are unused slots.
func (c *Config) Allows(mint solana.PublicKey) bool {
	if mint.IsZero() {
		return false
	}
	for _, m := range c.Mints {
		if m == mint {
			return true
		}
	}
	return false
}

// CanAdminister reports whether authority may mutate the record.
func (c *Config) CanAdminister(authority solana.PublicKey) bool {
	return authority == c.Admin || authority == c.ProgOwner
}

// Escrow is one open offer.
//
//	0..32    maker
//	32..64   mint_x
//	64..96   mint_y
//	96..104  amount_x
//	104..112 amount_y
//	112..120 id
//	120      decimal_x
//	121      decimal_y
//	122      bump
//	123..155 config
type Escrow struct {
	Maker    solana.PublicKey
	MintX    solana.PublicKey
	MintY    solana.PublicKey
	AmountX  uint64
	AmountY  uint64
	ID       uint64
	DecimalX uint8
	DecimalY uint8
	Bump     uint8
	// Config is the desk the offer was made under. Take and Cancel must
	// present the same account.
	Config solana.PublicKey
}

// DecodeEscrow reads an escrow record.
func DecodeEscrow(data []byte) (*Escrow, error) {
	if len(data) != EscrowLen {
		return nil, ErrEscrowDataLen
	}
	e := &Escrow{}
	copy(e.Maker[:], data[0:32])
	copy(e.MintX[:], data[32:64])
	copy(e.MintY[:], data[64:96])
	e.AmountX = binary.LittleEndian.Uint64(data[96:104])
	e.AmountY = binary.LittleEndian.Uint64(data[104:112])
	e.ID = binary.LittleEndian.Uint64(data[112:120])
	e.DecimalX = data[120]
	e.DecimalY = data[121]
	e.Bump = data[122]
	copy(e.Config[:], data[123:155])
	return e, nil
}

// Encode writes e into dst, which must be EscrowLen bytes.
func (e *Escrow) Encode(dst []byte) {
	_ = dst[EscrowLen-1]
	copy(dst[0:32], e.Maker[:])
	copy(dst[32:64], e.MintX[:])
	copy(dst[64:96], e.MintY[:])
	binary.LittleEndian.PutUint64(dst[96:104], e.AmountX)
	binary.LittleEndian.PutUint64(dst[104:112], e.AmountY)
	binary.LittleEndian.PutUint64(dst[112:120], e.ID)
	dst[120] = e.DecimalX
	dst[121] = e.DecimalY
	dst[122] = e.Bump
	copy(dst[123:155], e.Config[:])
}

// Vault is the native-balance holder created next to a config.
type Vault struct {
	CreatedAt int64
	Slot      uint64
}

// Encode writes v into dst, which must be VaultLen bytes.
func (v *Vault) Encode(dst []byte) {
	_ = dst[VaultLen-1]
	binary.LittleEndian.PutUint64(dst[0:8], uint64(v.CreatedAt))
	binary.LittleEndian.PutUint64(dst[8:16], v.Slot)
}

func parseBool(b byte) (bool, error) {
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, ErrInvalidBool
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
