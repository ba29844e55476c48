// internal/atbridge/bridge.go
package atbridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/clock"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/codec"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/fault"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/logging"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/register"
)

// Registers is the register access the bridge needs.
type Registers interface {
	Read(addr uint16) (uint16, error)
	ReadMany(addr, count uint16) ([]uint16, error)
	WriteMany(addr uint16, words []uint16) error
}

// Timing holds the per-command settle delays before the response is polled.
type Timing struct {
	Reset   time.Duration // ATZ
	Query   time.Duration // AT+BISGET=
	Default time.Duration
}

// DefaultTiming matches the module's processing times.
func DefaultTiming() Timing {
	return Timing{
		Reset:   5 * time.Second,
		Query:   1 * time.Second,
		Default: 3 * time.Second,
	}
}

// queryPrefix marks the command family whose response is a quoted hex string.
const queryPrefix = "AT+BISGET="

// resetCommand is the module reset.
const resetCommand = "ATZ"

// Bridge runs AT commands through the register command window.
type Bridge struct {
	regs     Registers
	exchange sync.Locker
	timing   Timing
	log      *logging.Logger
}

// New creates a bridge. exchange serializes whole exchanges and is shared with
// every other multi-step user of the same transport; nil gets a private mutex.
func New(regs Registers, exchange sync.Locker, timing Timing, log *logging.Logger) *Bridge {
	if exchange == nil {
		exchange = &sync.Mutex{}
	}
	return &Bridge{
		regs:     regs,
		exchange: exchange,
		timing:   timing,
		log:      logging.OrDiscard(log),
	}
}

// IsQuery reports whether cmd belongs to the quoted-hex response family.
func IsQuery(cmd string) bool {
	return strings.Contains(cmd, queryPrefix)
}

// SettleDelay returns how long to wait after writing cmd.
func (b *Bridge) SettleDelay(cmd string) time.Duration {
	switch {
	case cmd == resetCommand:
		return b.timing.Reset
	case IsQuery(cmd):
		return b.timing.Query
	}
	return b.timing.Default
}

// ResponseWindow returns the length register and data window for cmd.
func ResponseWindow(cmd string) (lengthReg, dataReg uint16) {
	if IsQuery(cmd) {
		return register.QueryResponseLength, register.QueryResponse
	}
	return register.ModuleResponseLength, register.ModuleResponse
}

// Command performs one write→wait→poll→read exchange.
//
// A response that is not ready, or a failed register read, returns an error
// matching fault.ErrNoData; the caller decides whether to retry. A response
// that cannot be decoded returns fault.ErrFraming.
func (b *Bridge) Command(ctx context.Context, cmd string) (string, error) {
	if cmd == "" {
		return "", errors.New("atbridge: empty command")
	}

	b.exchange.Lock()
	defer b.exchange.Unlock()

	words := codec.EncodeCommand(cmd)
	b.log.LogWords("AT "+cmd, words)

	if err := b.regs.WriteMany(register.CommandWindow, words); err != nil {
		b.log.Verbose("command %q not written: %v", cmd, err)
		return "", err
	}

	if err := clock.Sleep(ctx, b.SettleDelay(cmd)); err != nil {
		return "", err
	}

	lengthReg, dataReg := ResponseWindow(cmd)

	n, err := b.regs.Read(lengthReg)
	if err != nil {
		return "", fault.Wrap(fault.ErrNoData, "at "+cmd, err)
	}
	if n == 0 {
		return "", fault.Wrap(fault.ErrNoData, "at "+cmd, nil)
	}
	b.log.Debug("command %q: %d response registers", cmd, n)

	resp, err := b.regs.ReadMany(dataReg, n)
	if err != nil {
		return "", fault.Wrap(fault.ErrNoData, "at "+cmd, err)
	}

	text, err := decode(cmd, resp)
	if err != nil {
		b.log.Error("command %q: %v", cmd, err)
		return "", fault.Framing("at "+cmd, err)
	}
	return text, nil
}

func decode(cmd string, resp []uint16) (string, error) {
	if IsQuery(cmd) {
		return codec.DecodeQuotedHex(codec.UnpackWords(resp))
	}
	return codec.DecodeText(resp)
}
