package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"solana-escrow-lab/internal/client"
	"solana-escrow-lab/internal/program"
	"solana-escrow-lab/internal/solana"
	"solana-escrow-lab/internal/token"
)

type command struct {
	summary string
	run     func(ctx context.Context, e *env, fs *flag.FlagSet, args []string) error
}

var commands = map[string]command{
	"keygen":        {"write a new keypair file", cmdKeygen},
	"address":       {"print the signer address", cmdAddress},
	"airdrop":       {"request lamports from the faucet", cmdAirdrop},
	"balance":       {"print a lamport or token balance", cmdBalance},
	"create-mint":   {"create a token mint", cmdCreateMint},
	"mint-to":       {"mint tokens to a wallet's associated account", cmdMintTo},
	"init-config":   {"create the signer's config record", cmdInitConfig},
	"update-config": {"update one field group of a config", cmdUpdateConfig},
	"resize-config": {"resize a config record", cmdResizeConfig},
	"close-config":  {"close a config record", cmdCloseConfig},
	"show-config":   {"print a config record", cmdShowConfig},
	"make":          {"open an escrow offer", cmdMake},
	"take":          {"settle an escrow offer", cmdTake},
	"withdraw":      {"sweep settled proceeds to the maker", cmdWithdraw},
	"cancel":        {"cancel an open offer", cmdCancel},
	"show-escrow":   {"print an escrow record", cmdShowEscrow},
}

// keyFlag is a public key flag that defaults to the signer when empty.
type keyFlag struct {
	value string
	set   bool
}

func (k *keyFlag) String() string { return k.value }

func (k *keyFlag) Set(s string) error {
	if _, err := solana.PublicKeyFromBase58(s); err != nil {
		return err
	}
	k.value, k.set = s, true
	return nil
}

// resolve returns the flag value, or the signer address when unset.
func (k *keyFlag) resolve(e *env) (solana.PublicKey, error) {
	if k.set {
		return solana.PublicKeyFromBase58(k.value)
	}
	kp, err := e.signer()
	if err != nil {
		return solana.PublicKey{}, err
	}
	return kp.PublicKey(), nil
}

// required returns the flag value or an error naming it.
func (k *keyFlag) required(name string) (solana.PublicKey, error) {
	if !k.set {
		return solana.PublicKey{}, fmt.Errorf("%w: -%s is required", errUsage, name)
	}
	return solana.PublicKeyFromBase58(k.value)
}

func keyVar(fs *flag.FlagSet, name, usage string) *keyFlag {
	k := &keyFlag{}
	fs.Var(k, name, usage)
	return k
}

func (e *env) printSig(action, sig string) {
	fmt.Fprintf(e.out, "%s: %s\n", action, sig)
}

func cmdKeygen(_ context.Context, e *env, fs *flag.FlagSet, args []string) error {
	outPath := fs.String("out", "", "keypair file to write")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *outPath == "" {
		return fmt.Errorf("%w: -out is required", errUsage)
	}
	if !*force {
		if _, err := solana.LoadKeypair(*outPath); err == nil {
			return fmt.Errorf("%s already holds a keypair (use -force)", *outPath)
		}
	}
	kp, err := solana.NewKeypair()
	if err != nil {
		return err
	}
	if err := kp.Save(*outPath); err != nil {
		return err
	}
	fmt.Fprintln(e.out, kp.PublicKey())
	return nil
}

func cmdAddress(_ context.Context, e *env, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	kp, err := e.signer()
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, kp.PublicKey())
	return nil
}

func cmdAirdrop(ctx context.Context, e *env, fs *flag.FlagSet, args []string) error {
	to := keyVar(fs, "to", "recipient (default: signer)")
	lamports := fs.Uint64("lamports", 1_000_000_000, "lamports to request")
	if err := fs.Parse(args); err != nil {
		return err
	}
	dst, err := to.resolve(e)
	if err != nil {
		return err
	}
	sig, err := e.client.RPC().RequestAirdrop(ctx, dst.String(), *lamports)
	if err != nil {
		return err
	}
	e.printSig("airdrop", sig)
	return nil
}

func cmdBalance(ctx context.Context, e *env, fs *flag.FlagSet, args []string) error {
	addr := keyVar(fs, "address", "wallet (default: signer)")
	mint := keyVar(fs, "mint", "print the balance of the wallet's associated account for this mint")
	if err := fs.Parse(args); err != nil {
		return err
	}
	wallet, err := addr.resolve(e)
	if err != nil {
		return err
	}

	if !mint.set {
		lamports, err := e.client.RPC().GetBalance(ctx, wallet.String())
		if err != nil {
			return err
		}
		fmt.Fprintf(e.out, "%d lamports\n", lamports)
		return nil
	}

	m, err := mint.required("mint")
	if err != nil {
		return err
	}
	ata, _, err := token.FindAssociatedAddress(wallet, m)
	if err != nil {
		return err
	}
	amount, err := e.client.RPC().GetTokenAccountBalance(ctx, ata.String())
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%s (raw %s, %d decimals)\n", amount.UIAmountString, amount.Amount, amount.Decimals)
	return nil
}

func cmdCreateMint(ctx context.Context, e *env, fs *flag.FlagSet, args []string) error {
	decimals := fs.Uint("decimals", 9, "mint decimals")
	authority := keyVar(fs, "authority", "mint authority (default: signer)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *decimals > 255 {
		return fmt.Errorf("%w: -decimals out of range", errUsage)
	}
	payer, err := e.signer()
	if err != nil {
		return err
	}
	auth, err := authority.resolve(e)
	if err != nil {
		return err
	}
	mint, err := solana.NewKeypair()
	if err != nil {
		return err
	}
	sig, err := e.client.CreateMint(ctx, payer, mint, auth, uint8(*decimals))
	if err != nil {
		return err
	}
	e.printSig("create-mint", sig)
	fmt.Fprintf(e.out, "mint: %s\n", mint.PublicKey())
	return nil
}

func cmdMintTo(ctx context.Context, e *env, fs *flag.FlagSet, args []string) error {
	mint := keyVar(fs, "mint", "mint (required)")
	to := keyVar(fs, "to", "wallet (default: signer)")
	amount := fs.Uint64("amount", 0, "raw amount")
	if err := fs.Parse(args); err != nil {
		return err
	}
	m, err := mint.required("mint")
	if err != nil {
		return err
	}
	wallet, err := to.resolve(e)
	if err != nil {
		return err
	}
	authority, err := e.signer()
	if err != nil {
		return err
	}
	ata, _, err := e.client.CreateATA(ctx, authority, wallet, m)
	if err != nil {
		return err
	}
	sig, err := e.client.MintTo(ctx, authority, m, ata, *amount)
	if err != nil {
		return err
	}
	e.printSig("mint-to", sig)
	fmt.Fprintf(e.out, "account: %s\n", ata)
	return nil
}

func parseStatus(v uint) (program.Status, error) {
	if v > 255 {
		return 0, program.ErrInvalidStatus
	}
	return program.ParseStatus(uint8(v))
}

func parseLabel(s string) ([32]byte, error) {
	var lbl [32]byte
	if len(s) > len(lbl) {
		return lbl, fmt.Errorf("%w: label longer than %d bytes", errUsage, len(lbl))
	}
	copy(lbl[:], s)
	return lbl, nil
}

func cmdInitConfig(ctx context.Context, e *env, fs *flag.FlagSet, args []string) error {
	admin := keyVar(fs, "admin", "config admin (default: signer)")
	mints := fs.String("mints", "", "comma-separated allow-listed mints, at most 4")
	fee := fs.Uint64("fee", 0, "fee (nonzero)")
	status := fs.Uint("status", uint(program.StatusActive), "initial status")
	authorized := fs.Bool("authorized", false, "restrict escrows to the allow-listed mints")
	label := fs.String("label", "", "label, up to 32 bytes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var list [4]solana.PublicKey
	parts := splitList(*mints)
	if len(parts) > len(list) {
		return fmt.Errorf("%w: at most %d mints", errUsage, len(list))
	}
	for i, p := range parts {
		pk, err := solana.PublicKeyFromBase58(p)
		if err != nil {
			return fmt.Errorf("mint %q: %w", p, err)
		}
		list[i] = pk
	}
	st, err := parseStatus(*status)
	if err != nil {
		return err
	}
	lbl, err := parseLabel(*label)
	if err != nil {
		return err
	}
	owner, err := e.signer()
	if err != nil {
		return err
	}
	adm, err := admin.resolve(e)
	if err != nil {
		return err
	}

	sig, err := e.client.InitConfig(ctx, owner, adm, list, program.InitConfig{
		IsAuthorized: *authorized,
		Status:       st,
		Fee:          *fee,
		Label:        lbl,
	})
	if err != nil {
		return err
	}
	e.printSig("init-config", sig)
	addr, _, err := program.ConfigAddress(program.ProgramID, owner.PublicKey())
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "config: %s\n", addr)
	return nil
}

var selectors = map[string]uint8{
	"status": program.SelectStatus,
	"fee":    program.SelectFee,
	"admin":  program.SelectAdmin,
	"owner":  program.SelectOwner,
}

func cmdUpdateConfig(ctx context.Context, e *env, fs *flag.FlagSet, args []string) error {
	owner := keyVar(fs, "owner", "config owner (default: signer)")
	field := fs.String("set", "", "field group: status, fee, admin or owner")
	status := fs.Uint("status", uint(program.StatusActive), "status for the status and fee groups")
	fee := fs.Uint64("fee", 0, "fee for the fee group")
	label := fs.String("label", "", "label for the fee group")
	account := keyVar(fs, "account", "new admin (fee, admin groups) or new owner (owner group)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	selector, ok := selectors[*field]
	if !ok {
		return fmt.Errorf("%w: -set must be status, fee, admin or owner", errUsage)
	}

	authority, err := e.signer()
	if err != nil {
		return err
	}
	configOwner, err := owner.resolve(e)
	if err != nil {
		return err
	}

	var upd program.UpdateConfig
	upd.U8s[0] = selector
	target := authority.PublicKey()
	switch selector {
	case program.SelectStatus, program.SelectFee:
		st, err := parseStatus(*status)
		if err != nil {
			return err
		}
		upd.U8s[1] = uint8(st)
		if selector == program.SelectFee {
			upd.U64s[0] = *fee
			if upd.Label, err = parseLabel(*label); err != nil {
				return err
			}
			// The fee group rewrites the admin too; keep the current one unless given.
			cfg, err := e.client.Config(ctx, configOwner)
			if err != nil {
				return err
			}
			target = cfg.Admin
		}
	}
	if account.set {
		if target, err = account.required("account"); err != nil {
			return err
		}
	} else if selector == program.SelectAdmin || selector == program.SelectOwner {
		return fmt.Errorf("%w: -account is required for -set %s", errUsage, *field)
	}

	sig, err := e.client.UpdateConfig(ctx, authority, configOwner, target, target, upd)
	if err != nil {
		return err
	}
	e.printSig("update-config", sig)
	return nil
}

func cmdResizeConfig(ctx context.Context, e *env, fs *flag.FlagSet, args []string) error {
	owner := keyVar(fs, "owner", "config owner (default: signer)")
	size := fs.Uint64("size", 0, "new record size in bytes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	authority, err := e.signer()
	if err != nil {
		return err
	}
	configOwner, err := owner.resolve(e)
	if err != nil {
		return err
	}
	sig, err := e.client.ResizeConfig(ctx, authority, configOwner, *size)
	if err != nil {
		return err
	}
	e.printSig("resize-config", sig)
	return nil
}

func cmdCloseConfig(ctx context.Context, e *env, fs *flag.FlagSet, args []string) error {
	owner := keyVar(fs, "owner", "config owner (default: signer)")
	dest := keyVar(fs, "dest", "lamport destination (default: signer)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	authority, err := e.signer()
	if err != nil {
		return err
	}
	configOwner, err := owner.resolve(e)
	if err != nil {
		return err
	}
	to, err := dest.resolve(e)
	if err != nil {
		return err
	}
	sig, err := e.client.CloseConfig(ctx, authority, configOwner, to)
	if err != nil {
		return err
	}
	e.printSig("close-config", sig)
	return nil
}

func cmdShowConfig(ctx context.Context, e *env, fs *flag.FlagSet, args []string) error {
	owner := keyVar(fs, "owner", "config owner (default: signer)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	configOwner, err := owner.resolve(e)
	if err != nil {
		return err
	}
	cfg, err := e.client.Config(ctx, configOwner)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "owner:      %s\n", cfg.ProgOwner)
	fmt.Fprintf(e.out, "admin:      %s\n", cfg.Admin)
	fmt.Fprintf(e.out, "vault:      %s\n", cfg.Vault)
	fmt.Fprintf(e.out, "status:     %d\n", cfg.Status)
	fmt.Fprintf(e.out, "fee:        %d\n", cfg.Fee)
	fmt.Fprintf(e.out, "authorized: %t\n", cfg.IsAuthorized)
	fmt.Fprintf(e.out, "updated_at: %d\n", cfg.UpdatedAt)
	for i, m := range cfg.Mints {
		if !m.IsZero() {
			fmt.Fprintf(e.out, "mint[%d]:    %s\n", i, m)
		}
	}
	return nil
}

// escrowFlags are shared by make, take and cancel.
type escrowFlags struct {
	maker, mintX, mintY, configOwner *keyFlag
	id                               *uint64
}

func newEscrowFlags(fs *flag.FlagSet, withMaker bool) *escrowFlags {
	f := &escrowFlags{
		mintX:       keyVar(fs, "mint-x", "offered mint (required)"),
		mintY:       keyVar(fs, "mint-y", "requested mint (required)"),
		configOwner: keyVar(fs, "config-owner", "owner of the governing config (required)"),
		id:          fs.Uint64("id", 0, "offer id"),
	}
	if withMaker {
		f.maker = keyVar(fs, "maker", "maker of the offer (required)")
	}
	return f
}

func (f *escrowFlags) keys() (mintX, mintY, configOwner solana.PublicKey, err error) {
	if mintX, err = f.mintX.required("mint-x"); err != nil {
		return
	}
	if mintY, err = f.mintY.required("mint-y"); err != nil {
		return
	}
	configOwner, err = f.configOwner.required("config-owner")
	return
}

func cmdMake(ctx context.Context, e *env, fs *flag.FlagSet, args []string) error {
	f := newEscrowFlags(fs, false)
	amountX := fs.Uint64("amount-x", 0, "raw units of X offered")
	amountY := fs.Uint64("amount-y", 0, "raw units of Y requested")
	if err := fs.Parse(args); err != nil {
		return err
	}
	mintX, mintY, configOwner, err := f.keys()
	if err != nil {
		return err
	}
	maker, err := e.signer()
	if err != nil {
		return err
	}
	mx, err := e.client.Mint(ctx, mintX)
	if err != nil {
		return fmt.Errorf("mint-x: %w", err)
	}
	my, err := e.client.Mint(ctx, mintY)
	if err != nil {
		return fmt.Errorf("mint-y: %w", err)
	}

	sig, err := e.client.Make(ctx, maker, mintX, mintY, configOwner, program.EscrowMake{
		DecimalX: mx.Decimals,
		AmountX:  *amountX,
		DecimalY: my.Decimals,
		AmountY:  *amountY,
		ID:       *f.id,
	})
	if err != nil {
		return err
	}
	e.printSig("make", sig)
	addr, _, err := program.EscrowAddress(program.ProgramID, maker.PublicKey(), *f.id)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "escrow: %s\n", addr)
	return nil
}

// cmdTake reads the offer terms from the escrow record so the taker only
// names the offer.
func cmdTake(ctx context.Context, e *env, fs *flag.FlagSet, args []string) error {
	f := newEscrowFlags(fs, true)
	if err := fs.Parse(args); err != nil {
		return err
	}
	maker, err := f.maker.required("maker")
	if err != nil {
		return err
	}
	configOwner, err := f.configOwner.required("config-owner")
	if err != nil {
		return err
	}
	taker, err := e.signer()
	if err != nil {
		return err
	}

	rec, err := e.client.Escrow(ctx, maker, *f.id)
	if errors.Is(err, client.ErrAccountNotFound) {
		return fmt.Errorf("no open offer %d from %s", *f.id, maker)
	}
	if err != nil {
		return err
	}
	if f.mintX.set || f.mintY.set {
		mintX, mintY, _, err := f.keys()
		if err != nil {
			return err
		}
		if mintX != rec.MintX || mintY != rec.MintY {
			return fmt.Errorf("offer trades %s for %s", rec.MintX, rec.MintY)
		}
	}

	sig, err := e.client.Take(ctx, taker, maker, rec.MintX, rec.MintY, configOwner, program.EscrowTake{
		DecimalX: rec.DecimalX,
		AmountX:  rec.AmountX,
		DecimalY: rec.DecimalY,
		AmountY:  rec.AmountY,
		ID:       rec.ID,
	})
	if err != nil {
		return err
	}
	e.printSig("take", sig)
	return nil
}

func cmdWithdraw(ctx context.Context, e *env, fs *flag.FlagSet, args []string) error {
	mintY := keyVar(fs, "mint-y", "requested mint (required)")
	id := fs.Uint64("id", 0, "offer id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	my, err := mintY.required("mint-y")
	if err != nil {
		return err
	}
	maker, err := e.signer()
	if err != nil {
		return err
	}
	sig, err := e.client.Withdraw(ctx, maker, my, *id)
	if err != nil {
		return err
	}
	e.printSig("withdraw", sig)
	return nil
}

func cmdCancel(ctx context.Context, e *env, fs *flag.FlagSet, args []string) error {
	f := newEscrowFlags(fs, false)
	if err := fs.Parse(args); err != nil {
		return err
	}
	mintX, mintY, configOwner, err := f.keys()
	if err != nil {
		return err
	}
	maker, err := e.signer()
	if err != nil {
		return err
	}
	sig, err := e.client.Cancel(ctx, maker, mintX, mintY, configOwner, *f.id)
	if err != nil {
		return err
	}
	e.printSig("cancel", sig)
	return nil
}

func cmdShowEscrow(ctx context.Context, e *env, fs *flag.FlagSet, args []string) error {
	maker := keyVar(fs, "maker", "maker (default: signer)")
	id := fs.Uint64("id", 0, "offer id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	mk, err := maker.resolve(e)
	if err != nil {
		return err
	}
	rec, err := e.client.Escrow(ctx, mk, *id)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "maker:    %s\n", rec.Maker)
	fmt.Fprintf(e.out, "id:       %d\n", rec.ID)
	fmt.Fprintf(e.out, "mint_x:   %s\n", rec.MintX)
	fmt.Fprintf(e.out, "amount_x: %d (%d decimals)\n", rec.AmountX, rec.DecimalX)
	fmt.Fprintf(e.out, "mint_y:   %s\n", rec.MintY)
	fmt.Fprintf(e.out, "amount_y: %d (%d decimals)\n", rec.AmountY, rec.DecimalY)
	fmt.Fprintf(e.out, "config:   %s\n", rec.Config)
	return nil
}
