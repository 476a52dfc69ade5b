package indexer

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"solana-escrow-lab/internal/domain"
)

// eventPattern matches one program event line and captures its kind and fields.
var eventPattern = regexp.MustCompile(
	`^Program log: (config_init|config_update|config_resize|config_close|escrow_make|escrow_take|escrow_withdraw|escrow_cancel) (.+)$`)

// fieldPattern matches key=value pairs of an event line.
var fieldPattern = regexp.MustCompile(`(\w+)=(\S+)`)

// Event is a program event recovered from transaction logs.
// Execution carries the stored row; the remaining fields only feed offer projections.
type Event struct {
	Execution *domain.Execution
	MintX     string
	MintY     string
	DecimalX  uint8
	DecimalY  uint8
}

// fields is the parsed key=value body of an event line.
type fields map[string]string

func (f fields) str(key string) (string, error) {
	v, ok := f[key]
	if !ok || v == "" {
		return "", fmt.Errorf("missing field %q", key)
	}
	return v, nil
}

func (f fields) uint(key string, bits int) (uint64, error) {
	v, ok := f[key]
	if !ok {
		return 0, fmt.Errorf("missing field %q", key)
	}
	n, err := strconv.ParseUint(v, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", key, err)
	}
	return n, nil
}

// ParseEvents extracts program events from the logs of one transaction.
// blockTime is in Unix seconds. Events are numbered in log order starting at zero;
// a malformed event line is reported and still consumes its index so that
// indexes stay stable across re-parses.
func ParseEvents(logs []string, signature string, slot, blockTime int64) ([]*Event, error) {
	var (
		events   []*Event
		errs     []error
		eventIdx int
	)

	for _, line := range logs {
		m := eventPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		idx := eventIdx
		eventIdx++

		f := make(fields)
		for _, kv := range fieldPattern.FindAllStringSubmatch(m[2], -1) {
			f[kv[1]] = kv[2]
		}

		ev, err := buildEvent(domain.EventKind(m[1]), f)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s event %d: %w", m[1], idx, err))
			continue
		}
		ev.Execution.Signature = signature
		ev.Execution.EventIndex = idx
		ev.Execution.Slot = slot
		ev.Execution.Timestamp = blockTime * 1000
		events = append(events, ev)
	}

	if err := errors.Join(errs...); err != nil {
		return events, fmt.Errorf("parse %s: %w", signature, err)
	}
	return events, nil
}

func buildEvent(kind domain.EventKind, f fields) (*Event, error) {
	e := &domain.Execution{Kind: kind}
	ev := &Event{Execution: e}
	var err error

	switch kind {
	case domain.EventConfigInit:
		if e.Account, err = f.str("config"); err != nil {
			return nil, err
		}
		if e.Actor, err = f.str("owner"); err != nil {
			return nil, err
		}

	case domain.EventConfigUpdate, domain.EventConfigResize:
		if e.Account, err = f.str("config"); err != nil {
			return nil, err
		}
		if e.Actor, err = f.str("authority"); err != nil {
			return nil, err
		}

	case domain.EventConfigClose:
		if e.Account, err = f.str("config"); err != nil {
			return nil, err
		}
		if e.Actor, err = f.str("authority"); err != nil {
			return nil, err
		}
		dest, err := f.str("destination")
		if err != nil {
			return nil, err
		}
		e.Counterparty = &dest

	case domain.EventEscrowMake:
		if err := escrowFields(e, f, "maker"); err != nil {
			return nil, err
		}
		if ev.MintX, err = f.str("mint_x"); err != nil {
			return nil, err
		}
		if ev.MintY, err = f.str("mint_y"); err != nil {
			return nil, err
		}
		if e.AmountX, err = f.uint("amount_x", 64); err != nil {
			return nil, err
		}
		if e.AmountY, err = f.uint("amount_y", 64); err != nil {
			return nil, err
		}
		decX, err := f.uint("decimal_x", 8)
		if err != nil {
			return nil, err
		}
		decY, err := f.uint("decimal_y", 8)
		if err != nil {
			return nil, err
		}
		ev.DecimalX, ev.DecimalY = uint8(decX), uint8(decY)

	case domain.EventEscrowTake:
		if err := escrowFields(e, f, "taker"); err != nil {
			return nil, err
		}
		maker, err := f.str("maker")
		if err != nil {
			return nil, err
		}
		e.Counterparty = &maker
		if e.AmountX, err = f.uint("amount_x", 64); err != nil {
			return nil, err
		}
		if e.AmountY, err = f.uint("amount_y", 64); err != nil {
			return nil, err
		}

	case domain.EventEscrowWithdraw:
		if err := escrowFields(e, f, "maker"); err != nil {
			return nil, err
		}
		if ev.MintY, err = f.str("mint_y"); err != nil {
			return nil, err
		}
		if e.AmountY, err = f.uint("amount_y", 64); err != nil {
			return nil, err
		}

	case domain.EventEscrowCancel:
		if err := escrowFields(e, f, "maker"); err != nil {
			return nil, err
		}
		if e.AmountX, err = f.uint("amount_x", 64); err != nil {
			return nil, err
		}
		// Y swept back on cancel is whatever partial deposit the vault held.
		if e.AmountY, err = f.uint("stray_y", 64); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
	return ev, nil
}

// escrowFields fills the fields every escrow event carries.
func escrowFields(e *domain.Execution, f fields, actorKey string) error {
	var err error
	if e.Account, err = f.str("escrow"); err != nil {
		return err
	}
	if e.Actor, err = f.str(actorKey); err != nil {
		return err
	}
	e.OfferID, err = f.uint("id", 64)
	return err
}

// Maker returns the maker of an escrow event.
func (ev *Event) Maker() string {
	if ev.Execution.Kind == domain.EventEscrowTake && ev.Execution.Counterparty != nil {
		return *ev.Execution.Counterparty
	}
	return ev.Execution.Actor
}
