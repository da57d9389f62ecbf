package hci

import (
	"context"
	"sync"
	"time"

	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/muxable/btsocket/pkg/bterr"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Discovery is a peer found by Adapter.Discover.
type Discovery struct {
	Addr                   btaddr.BDAddr
	Class                  uint32
	RSSI                   int8
	HasRSSI                bool
	Name                   string
	PageScanRepetitionMode PageScanRepetitionMode
	ClockOffset            uint16
}

// Device converts d to the form returned by Inquire.
func (d Discovery) Device() Device {
	c := d.Class
	dev := Device{Addr: d.Addr.String(), Class: &c, Name: d.Name}
	if d.HasRSSI {
		r := d.RSSI
		dev.RSSI = &r
	}
	return dev
}

type DiscoverOptions struct {
	// Duration is the scan length in units of 1.28 s, 1 to 48.
	Duration int
	// AccessCode is the inquiry access code LAP.
	AccessCode uint32
	// Mode selects the result events the controller sends. The controller
	// is left in this mode afterwards.
	Mode InquiryMode
	// LookupNames pages every peer that did not report a name in its
	// extended inquiry response.
	LookupNames bool
	// NameTimeout bounds each name lookup.
	NameTimeout time.Duration
	// OnFound is called for every new peer, before names are looked up.
	OnFound func(Discovery)
}

func DefaultDiscoverOptions() DiscoverOptions {
	return DiscoverOptions{
		Duration:    8,
		AccessCode:  LAPGeneral,
		Mode:        InquiryModeExtended,
		NameTimeout: 10 * time.Second,
	}
}

// eventQueue buffers packets from the read goroutine without blocking it.
type eventQueue struct {
	mu     sync.Mutex
	items  []Packet
	err    error
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(p Packet, err error) {
	q.mu.Lock()
	if err != nil {
		q.err = err
	} else {
		q.items = append(q.items, p)
	}
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) pop(ctx context.Context) (Packet, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			p := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return p, nil
		}
		err := q.err
		q.mu.Unlock()
		if err != nil {
			return nil, err
		}
		select {
		case <-q.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Discover runs an inquiry over the raw channel, decoding standard, RSSI and
// extended results. Peers are returned in the order first seen. If ctx ends
// early the inquiry is cancelled and the peers found so far are returned with
// the context error.
func (a *Adapter) Discover(ctx context.Context, opts DiscoverOptions) ([]Discovery, error) {
	if err := checkDuration(opts.Duration); err != nil {
		return nil, err
	}
	if err := a.WriteInquiryMode(opts.Mode); err != nil {
		return nil, errors.Wrap(err, "set inquiry mode")
	}

	q := newEventQueue()
	cancel := a.subscribe(func(p Packet, err error) {
		switch p.(type) {
		case *InquiryResultEventPacket, *InquiryCompleteEventPacket:
			q.push(p, nil)
		case nil:
			q.push(nil, err)
		}
	})
	defer cancel()

	if err := a.startInquiry(ctx, opts.AccessCode, uint8(opts.Duration), MaxInquiryResponses); err != nil {
		return nil, err
	}
	a.log.Debug("inquiry started", zap.Int("duration", opts.Duration), zap.Stringer("mode", opts.Mode))

	var found []Discovery
	index := make(map[btaddr.BDAddr]int)
	for done := false; !done; {
		p, err := q.pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				if cerr := a.InquiryCancel(); cerr != nil {
					a.log.Warn("inquiry cancel failed", zap.Error(cerr))
				}
				return found, ctxErr(ctx, "discover")
			}
			return found, errors.Wrap(err, "discover")
		}
		switch p := p.(type) {
		case *InquiryCompleteEventPacket:
			if err := bterr.Status("inquiry", p.Status); err != nil {
				return found, err
			}
			done = true
		case *InquiryResultEventPacket:
			for _, r := range p.Responses {
				d := Discovery{
					Addr:                   r.Addr,
					Class:                  r.Class,
					RSSI:                   r.RSSI,
					HasRSSI:                r.HasRSSI,
					Name:                   EIRName(r.EIR),
					PageScanRepetitionMode: r.PageScanRepetitionMode,
					ClockOffset:            r.ClockOffset,
				}
				if i, ok := index[r.Addr]; ok {
					// keep the freshest signal strength and any name learned
					if d.HasRSSI {
						found[i].RSSI, found[i].HasRSSI = d.RSSI, true
					}
					if found[i].Name == "" {
						found[i].Name = d.Name
					}
					continue
				}
				index[r.Addr] = len(found)
				found = append(found, d)
				if opts.OnFound != nil {
					opts.OnFound(d)
				}
			}
		}
	}

	if opts.LookupNames {
		if opts.NameTimeout <= 0 {
			opts.NameTimeout = DefaultDiscoverOptions().NameTimeout
		}
		for i := range found {
			if found[i].Name != "" {
				continue
			}
			nctx, ncancel := context.WithTimeout(ctx, opts.NameTimeout)
			name, err := a.ReadRemoteName(nctx, found[i].Addr, found[i].PageScanRepetitionMode, found[i].ClockOffset)
			ncancel()
			if err != nil {
				a.log.Warn("name lookup failed", zap.Stringer("addr", found[i].Addr), zap.Error(err))
				continue
			}
			found[i].Name = name
		}
	}
	return found, nil
}

// LookupName pages addr for its name, for use as InquiryOptions.LookupName.
func (a *Adapter) LookupName(timeout time.Duration) func(InquiryInfo) (string, error) {
	return func(info InquiryInfo) (string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return a.ReadRemoteName(ctx, info.Addr, info.PageScanRepetitionMode, info.ClockOffset)
	}
}
