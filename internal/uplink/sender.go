// internal/uplink/sender.go
package uplink

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/clock"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/codec"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/fault"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/logging"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/register"
)

// CompletedMarker is the only response text that confirms delivery.
const CompletedMarker = "Uplink Completed"

// Registers is the register access the sender needs.
type Registers interface {
	Read(addr uint16) (uint16, error)
	ReadMany(addr, count uint16) ([]uint16, error)
	WriteMany(addr uint16, words []uint16) error
}

// Timing bounds the wait for the device's response.
type Timing struct {
	PollInterval time.Duration
	MaxPolls     int
}

// DefaultTiming polls once a second for at most 30 seconds.
func DefaultTiming() Timing {
	return Timing{PollInterval: time.Second, MaxPolls: 30}
}

// Result describes one completed transfer.
type Result struct {
	Payload  string
	Response string
	Chunks   int
}

// Sender writes payloads into the uplink window.
type Sender struct {
	regs     Registers
	exchange sync.Locker
	timing   Timing
	log      *logging.Logger
}

// New creates a sender. exchange must be the lock shared with the AT bridge.
func New(regs Registers, exchange sync.Locker, timing Timing, log *logging.Logger) *Sender {
	if exchange == nil {
		exchange = &sync.Mutex{}
	}
	if timing.MaxPolls <= 0 {
		timing.MaxPolls = DefaultTiming().MaxPolls
	}
	return &Sender{
		regs:     regs,
		exchange: exchange,
		timing:   timing,
		log:      logging.OrDiscard(log),
	}
}

// Send serializes payload, writes every chunk in order and waits for the
// device's verdict. Any outcome other than CompletedMarker is an error
// matching fault.ErrDelivery; there is no partial success.
func (s *Sender) Send(ctx context.Context, payload any) (Result, error) {
	text, err := codec.MarshalPayload(payload)
	if err != nil {
		return Result{}, fault.Wrap(fault.ErrDelivery, "uplink", err)
	}

	words := codec.EncodePayload(text)
	if len(words) > register.UplinkMaxWords {
		return Result{Payload: text}, fault.Wrap(fault.ErrDelivery, "uplink",
			fmt.Errorf("payload needs %d registers, window holds %d", len(words), register.UplinkMaxWords))
	}
	chunks := codec.Split(words)
	res := Result{Payload: text, Chunks: len(chunks)}

	s.exchange.Lock()
	defer s.exchange.Unlock()

	for i, c := range chunks {
		addr := register.UplinkStart + c.Offset
		s.log.LogWords(fmt.Sprintf("uplink chunk %d @0x%04X", i, addr), c.Words)
		if err := s.regs.WriteMany(addr, c.Words); err != nil {
			s.log.Error("uplink chunk %d/%d failed: %v", i+1, len(chunks), err)
			return res, fault.Wrap(fault.ErrDelivery, fmt.Sprintf("uplink chunk %d", i+1), err)
		}
	}

	resp, err := s.awaitResponse(ctx)
	if err != nil {
		return res, err
	}
	res.Response = resp
	s.log.Info("uplink response: %s", strings.TrimSpace(resp))

	if !strings.Contains(resp, CompletedMarker) {
		return res, fault.Wrap(fault.ErrDelivery, "uplink", fmt.Errorf("device answered %q", strings.TrimSpace(resp)))
	}
	return res, nil
}

func (s *Sender) awaitResponse(ctx context.Context) (string, error) {
	for i := 0; i < s.timing.MaxPolls; i++ {
		n, err := s.regs.Read(register.UplinkResponseLength)
		if err == nil && n > 0 {
			words, err := s.regs.ReadMany(register.UplinkResponse, n)
			if err != nil {
				return "", fault.Wrap(fault.ErrDelivery, "uplink response", err)
			}
			text, err := codec.DecodeText(words)
			if err != nil {
				return "", fault.Wrap(fault.ErrDelivery, "uplink response", fault.Framing("decode", err))
			}
			return text, nil
		}
		if err := clock.Sleep(ctx, s.timing.PollInterval); err != nil {
			return "", fault.Wrap(fault.ErrDelivery, "uplink response", err)
		}
	}
	return "", fault.Wrap(fault.ErrDelivery, "uplink response",
		fmt.Errorf("no response after %d polls", s.timing.MaxPolls))
}
