package hci

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/muxable/btsocket/pkg/bterr"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// PacketConn is a packet oriented HCI transport, usually a *Socket.
type PacketConn interface {
	ReadPacket() (Packet, error)
	WritePacket(Packet) error
	Close() error
}

// Adapter runs commands against one controller. A single goroutine reads
// events and hands each to every registered callback, in order.
type Adapter struct {
	conn PacketConn
	log  *zap.Logger

	// CommandTimeout bounds commands issued without a context.
	CommandTimeout time.Duration

	onPacketLock sync.Mutex
	onPacket     map[string]func(Packet, error)

	done chan struct{}
	err  error
}

func NewAdapter(conn PacketConn, opts ...Option) *Adapter {
	cfg := newConfig(opts)
	a := &Adapter{
		conn:           conn,
		log:            cfg.logger,
		CommandTimeout: cfg.commandTimeout,
		onPacket:       make(map[string]func(Packet, error)),
		done:           make(chan struct{}),
	}
	go a.readLoop()
	return a
}

// OpenAdapter opens a raw socket on dev and starts an Adapter on it.
func OpenAdapter(dev int, opts ...Option) (*Adapter, error) {
	s, err := NewSocket(dev)
	if err != nil {
		return nil, err
	}
	return NewAdapter(s, opts...), nil
}

func (a *Adapter) readLoop() {
	defer close(a.done)
	for {
		p, err := a.conn.ReadPacket()
		for _, cb := range a.callbacks() {
			cb(p, err)
		}
		if err != nil {
			a.err = err
			return
		}
	}
}

func (a *Adapter) callbacks() []func(Packet, error) {
	a.onPacketLock.Lock()
	defer a.onPacketLock.Unlock()
	cbs := make([]func(Packet, error), 0, len(a.onPacket))
	for _, cb := range a.onPacket {
		cbs = append(cbs, cb)
	}
	return cbs
}

// subscribe registers cb until the returned func is called. cb runs on the
// read goroutine and must not block.
func (a *Adapter) subscribe(cb func(Packet, error)) func() {
	id := uuid.NewString()
	a.onPacketLock.Lock()
	a.onPacket[id] = cb
	a.onPacketLock.Unlock()
	return func() {
		a.onPacketLock.Lock()
		delete(a.onPacket, id)
		a.onPacketLock.Unlock()
	}
}

// Done is closed once the adapter stops reading events.
func (a *Adapter) Done() <-chan struct{} {
	return a.done
}

func (a *Adapter) Close() error {
	err := a.conn.Close()
	<-a.done
	return err
}

func (a *Adapter) closedErr() error {
	<-a.done
	if a.err == nil {
		return bterr.ErrClosed
	}
	return errors.Wrap(a.err, "adapter closed")
}

func (a *Adapter) commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.CommandTimeout)
}

func ctxErr(ctx context.Context, op string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Wrap(bterr.ErrTimedOut, op)
	}
	return errors.Wrap(ctx.Err(), op)
}

// op sends p and waits for its Command Complete event. A failing Command
// Status for the same opcode ends the wait early.
func (a *Adapter) op(ctx context.Context, p CommandPacket) ([]byte, error) {
	done := make(chan []byte, 1)
	fail := make(chan error, 1)
	cancel := a.subscribe(func(q Packet, err error) {
		switch q := q.(type) {
		case *CommandCompleteEventPacket:
			if q.CommandOpcode != p.Opcode() {
				return
			}
			select {
			case done <- q.ReturnParameters:
			default:
			}
		case *CommandStatusEventPacket:
			if q.CommandOpcode != p.Opcode() || q.Status == 0 {
				return
			}
			select {
			case fail <- bterr.Status(p.Opcode().String(), q.Status):
			default:
			}
		}
	})
	defer cancel()

	if err := a.conn.WritePacket(p); err != nil {
		return nil, err
	}
	select {
	case buf := <-done:
		return buf, nil
	case err := <-fail:
		return nil, err
	case <-a.done:
		return nil, a.closedErr()
	case <-ctx.Done():
		return nil, ctxErr(ctx, p.Opcode().String())
	}
}

// exec runs op and strips the leading status byte of the return parameters.
func (a *Adapter) exec(ctx context.Context, p CommandPacket) ([]byte, error) {
	buf, err := a.op(ctx, p)
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, errors.Wrapf(errIncorrectPacket, "%v: empty return parameters", p.Opcode())
	}
	if err := bterr.Status(p.Opcode().String(), buf[0]); err != nil {
		return nil, err
	}
	return buf[1:], nil
}

// opStatus sends p and waits for its Command Status event, for commands whose
// outcome is reported later by another event.
func (a *Adapter) opStatus(ctx context.Context, p CommandPacket) error {
	status := make(chan uint8, 1)
	cancel := a.subscribe(func(q Packet, err error) {
		if q, ok := q.(*CommandStatusEventPacket); ok && q.CommandOpcode == p.Opcode() {
			select {
			case status <- q.Status:
			default:
			}
		}
	})
	defer cancel()

	if err := a.conn.WritePacket(p); err != nil {
		return err
	}
	select {
	case s := <-status:
		return bterr.Status(p.Opcode().String(), s)
	case <-a.done:
		return a.closedErr()
	case <-ctx.Done():
		return ctxErr(ctx, p.Opcode().String())
	}
}

// Command sends a raw command and returns its return parameters, status byte
// included.
func (a *Adapter) Command(ctx context.Context, opcode Opcode, params ...byte) ([]byte, error) {
	return a.op(ctx, NewGenericCommandPacket(opcode, params...))
}

func (a *Adapter) Reset() error {
	ctx, cancel := a.commandContext()
	defer cancel()
	_, err := a.exec(ctx, NewGenericCommandPacket(OpcodeReset))
	return err
}

func (a *Adapter) ReadBDAddr() (btaddr.BDAddr, error) {
	var addr btaddr.BDAddr
	ctx, cancel := a.commandContext()
	defer cancel()
	buf, err := a.exec(ctx, NewGenericCommandPacket(OpcodeReadBDAddr))
	if err != nil {
		return addr, err
	}
	if copy(addr[:], buf) != 6 {
		return addr, errors.Wrap(errIncorrectPacket, "short BD_ADDR")
	}
	return addr, nil
}

func (a *Adapter) ReadLocalName() (string, error) {
	ctx, cancel := a.commandContext()
	defer cancel()
	buf, err := a.exec(ctx, NewGenericCommandPacket(OpcodeReadLocalName))
	if err != nil {
		return "", err
	}
	return cString(buf), nil
}

func (a *Adapter) ReadClassOfDevice() (uint32, error) {
	ctx, cancel := a.commandContext()
	defer cancel()
	buf, err := a.exec(ctx, NewGenericCommandPacket(OpcodeReadClassOfDevice))
	if err != nil {
		return 0, err
	}
	if len(buf) < 3 {
		return 0, errors.Wrap(errIncorrectPacket, "short class of device")
	}
	return uint32(buf[2])<<16 | uint32(buf[1])<<8 | uint32(buf[0]), nil
}

func (a *Adapter) InquiryCancel() error {
	ctx, cancel := a.commandContext()
	defer cancel()
	_, err := a.exec(ctx, NewGenericCommandPacket(OpcodeInquiryCancel))
	return err
}
