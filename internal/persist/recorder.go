package persist

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/lockstep/internal/command"
	coresys "github.com/l1jgo/lockstep/internal/core/system"
	"github.com/l1jgo/lockstep/internal/determinism"
)

// maxPending bounds the rows held while the database is unreachable.
const maxPending = 1 << 14

// Store is the write side of the journal.
type Store interface {
	AppendFrames(ctx context.Context, matchID int64, frames []FrameRow) error
	AppendHashes(ctx context.Context, matchID int64, hashes []HashRow) error
	InsertDesync(ctx context.Context, matchID int64, d DesyncRow) error
	FinishMatch(ctx context.Context, matchID int64, frames int32, digest []byte) error
}

// Recorder journals a running match: every merged influence frame, the hash
// of every simulated frame and every reported desync. It is a FrameSink for
// the scheduler and a Persist phase system; writes are batched every
// interval frames and a failed write is logged, never fatal.
type Recorder struct {
	log      *zap.Logger
	store    Store
	matchID  int64
	timeout  time.Duration
	interval int
	hash     func() int32

	digest    *Digest
	merged    int32
	tickCount int
	frames    []FrameRow
	hashes    []HashRow
	desyncs   []DesyncRow
	disabled  bool
}

// NewRecorder records into matchID. hash is read once per frame after the
// state hash has been taken.
func NewRecorder(store Store, matchID int64, interval int, timeout time.Duration, hash func() int32, log *zap.Logger) *Recorder {
	if interval < 1 {
		interval = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Recorder{
		log:      log,
		store:    store,
		matchID:  matchID,
		timeout:  timeout,
		interval: interval,
		hash:     hash,
		digest:   NewDigest(),
	}
}

// MergedFrame implements lockstep.FrameSink.
func (r *Recorder) MergedFrame(frame int32, batches []*command.Batch) {
	if err := r.digest.Add(frame, batches); err != nil {
		r.log.Warn("輸入摘要計算失敗", zap.Int32("frame", frame), zap.Error(err))
	}
	r.merged++
	if r.disabled {
		return
	}
	r.frames = append(r.frames, FrameRow{Frame: frame, Batches: batches})
}

// Desync queues a mismatch with the snapshot taken when it was reported.
func (r *Recorder) Desync(d determinism.Desync, snap *determinism.Snapshot) {
	if r.disabled {
		return
	}
	r.desyncs = append(r.desyncs, DesyncRow{
		Frame:    int32(d.Frame),
		Peer:     d.Peer,
		Local:    d.Local,
		Remote:   d.Remote,
		Snapshot: snap,
	})
}

func (r *Recorder) Phase() coresys.Phase { return coresys.PhasePersist }

func (r *Recorder) Update(frame int) {
	if r.disabled {
		return
	}
	r.hashes = append(r.hashes, HashRow{Frame: int32(frame), Hash: r.hash()})
	r.tickCount++
	if r.tickCount < r.interval {
		return
	}
	r.tickCount = 0

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.Flush(ctx); err != nil {
		r.log.Warn("對局日誌寫入失敗，稍後重試",
			zap.Int64("match", r.matchID),
			zap.Int("pending_frames", len(r.frames)),
			zap.Error(err),
		)
		if len(r.frames)+len(r.hashes) > maxPending {
			r.log.Error("對局日誌寫入持續失敗，停止記錄", zap.Int64("match", r.matchID))
			r.disabled = true
			r.frames, r.hashes, r.desyncs = nil, nil, nil
		}
	}
}

// Flush writes everything pending. Rows stay queued when a write fails.
func (r *Recorder) Flush(ctx context.Context) error {
	if err := r.store.AppendFrames(ctx, r.matchID, r.frames); err != nil {
		return err
	}
	r.frames = r.frames[:0]
	if err := r.store.AppendHashes(ctx, r.matchID, r.hashes); err != nil {
		return err
	}
	r.hashes = r.hashes[:0]
	for len(r.desyncs) > 0 {
		if err := r.store.InsertDesync(ctx, r.matchID, r.desyncs[0]); err != nil {
			return err
		}
		r.desyncs = r.desyncs[1:]
	}
	return nil
}

// Close flushes and seals the match with its frame count and digest.
func (r *Recorder) Close(ctx context.Context) error {
	if r.disabled {
		return nil
	}
	if err := r.Flush(ctx); err != nil {
		return err
	}
	if err := r.store.FinishMatch(ctx, r.matchID, r.merged, r.Digest()); err != nil {
		return err
	}
	r.log.Info("對局日誌已封存",
		zap.Int64("match", r.matchID),
		zap.Int32("influence_frames", r.merged),
	)
	return nil
}

// Digest is the input digest of every frame merged so far.
func (r *Recorder) Digest() []byte { return r.digest.Sum() }

// Merged is the number of influence frames seen.
func (r *Recorder) Merged() int32 { return r.merged }

func (r *Recorder) MatchID() int64 { return r.matchID }
