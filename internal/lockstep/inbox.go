package lockstep

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/l1jgo/lockstep/internal/command"
	"github.com/l1jgo/lockstep/internal/net/packet"
)

// ErrThrottled is returned by Submit when local input exceeds the rate limit.
var ErrThrottled = errors.New("lockstep: local input throttled")

// Inbox is the only boundary between transport goroutines and the
// simulation goroutine. Remote batches arrive whole through a buffered
// channel; local commands are queued by Submit. The scheduler drains both at
// tick boundaries.
type Inbox struct {
	log        *zap.Logger
	peer       uint8
	deliveries chan []byte
	limiter    *rate.Limiter

	mu      sync.Mutex
	local   [][]byte
	dropped int
}

// NewInbox creates an inbox for the given local peer. A nil limiter accepts
// all local input.
func NewInbox(size int, peer uint8, limiter *rate.Limiter, log *zap.Logger) *Inbox {
	if size < 1 {
		size = 64
	}
	return &Inbox{
		log:        log,
		peer:       peer,
		deliveries: make(chan []byte, size),
		limiter:    limiter,
	}
}

// Peer is the local participant index.
func (in *Inbox) Peer() uint8 { return in.peer }

// Deliver hands over one serialized batch from a remote peer. It blocks
// while the inbox is full. payload is copied.
func (in *Inbox) Deliver(ctx context.Context, payload []byte) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	select {
	case in.deliveries <- buf:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DeliverBatch serializes b and delivers it.
func (in *Inbox) DeliverBatch(ctx context.Context, b *command.Batch) error {
	data, err := b.MarshalBinary()
	if err != nil {
		return err
	}
	return in.Deliver(ctx, data)
}

// TryDeliver is Deliver without blocking. It reports false when the inbox is
// full.
func (in *Inbox) TryDeliver(payload []byte) bool {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	select {
	case in.deliveries <- buf:
		return true
	default:
		return false
	}
}

// Submit queues a local command for the next outgoing batch. The command is
// serialized at once so the caller may reuse it.
func (in *Inbox) Submit(cmd *command.Command) error {
	if in.limiter != nil && !in.limiter.Allow() {
		in.mu.Lock()
		in.dropped++
		in.mu.Unlock()
		in.log.Warn("本地輸入過快，已丟棄",
			zap.Uint8("controller", cmd.ControllerID),
			zap.String("input", cmd.Input.String()),
		)
		return ErrThrottled
	}
	return in.Enqueue(cmd)
}

// Enqueue queues host-generated input, such as a match's opening spawns,
// without consulting the limiter.
func (in *Inbox) Enqueue(cmd *command.Command) error {
	data, err := cmd.Bytes()
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	in.mu.Lock()
	in.local = append(in.local, data)
	in.mu.Unlock()
	return nil
}

// Dropped is the number of local commands refused by the limiter.
func (in *Inbox) Dropped() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.dropped
}

// drain passes every waiting delivery to fn without blocking.
func (in *Inbox) drain(fn func([]byte)) {
	for {
		select {
		case data := <-in.deliveries:
			fn(data)
		default:
			return
		}
	}
}

// flush builds the serialized local batch for frame, taking the queued
// commands when take is set. Commands past the batch limit stay queued for
// the next batch.
func (in *Inbox) flush(frame int32, take bool) []byte {
	var queued [][]byte
	carried := 0
	if take {
		in.mu.Lock()
		queued = in.local
		in.local = nil
		if len(queued) > command.MaxBatchCommands {
			in.local = append(in.local, queued[command.MaxBatchCommands:]...)
			queued = queued[:command.MaxBatchCommands]
			carried = len(in.local)
		}
		in.mu.Unlock()
	}
	if carried > 0 {
		in.log.Warn("本地輸入超過單批上限，餘下順延",
			zap.Int32("frame", frame),
			zap.Int("carried", carried),
		)
	}

	w := packet.NewWriter()
	w.WriteInt32(frame)
	w.WriteUint8(in.peer)
	w.WriteUint16(uint16(len(queued)))
	for _, data := range queued {
		w.WriteBytes(data)
	}
	return w.Bytes()
}

// reset drops queued input.
func (in *Inbox) reset() {
	in.drain(func([]byte) {})
	in.mu.Lock()
	in.local = nil
	in.mu.Unlock()
}
