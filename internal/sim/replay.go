package sim

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/l1jgo/lockstep/internal/command"
)

// ErrNotSpectating is returned when Replay is given a simulation that still
// publishes its own input.
var ErrNotSpectating = errors.New("sim: replay needs a spectating scheduler")

// ReplayFrame is one journaled influence frame, batches in peer order.
type ReplayFrame struct {
	Frame   int32
	Batches []*command.Batch
}

// ReplayResult summarizes a replay run.
type ReplayResult struct {
	Frames  int // simulated frames
	Checked int // frames with a recorded hash
	// FirstMismatch is the first frame whose hash differed, or -1.
	FirstMismatch int
	Expected      int32
	Actual        int32
}

// Replay feeds journaled frames into s and compares every simulated frame's
// hash with expected. s must be freshly initialized with the recorded
// settings and a spectating scheduler. Replay stops at the first mismatch.
// When a frame holds more batches than the inbox, s is stepped to drain it.
func Replay(ctx context.Context, s *Simulation, frames []ReplayFrame, expected map[int32]int32) (ReplayResult, error) {
	res := ReplayResult{FirstMismatch: -1}
	if !s.Scheduler.Config().Spectate {
		return res, ErrNotSpectating
	}
	for _, f := range frames {
		for _, b := range f.Batches {
			data, err := b.MarshalBinary()
			if err != nil {
				return res, fmt.Errorf("replay frame %d: %w", f.Frame, err)
			}
			for !s.Inbox.TryDeliver(data) {
				if err := ctx.Err(); err != nil {
					return res, fmt.Errorf("replay frame %d: %w", f.Frame, err)
				}
				if done, err := advance(s, expected, &res); done || err != nil {
					return res, err
				}
			}
		}
		if done, err := advance(s, expected, &res); done || err != nil {
			return res, err
		}
	}
	return res, nil
}

// advance steps s as far as its input allows, checking each frame's hash. It
// reports done at the first mismatch.
func advance(s *Simulation, expected map[int32]int32, res *ReplayResult) (bool, error) {
	for s.Step() {
		frame := s.FrameCount() - 1
		res.Frames++
		want, ok := expected[int32(frame)]
		if !ok {
			continue
		}
		res.Checked++
		if got := s.LastHash(); got != want {
			res.FirstMismatch, res.Expected, res.Actual = frame, want, got
			s.log.Warn("重播雜湊不一致",
				zap.Int("frame", frame),
				zap.Int32("expected", want),
				zap.Int32("actual", got),
			)
			return true, nil
		}
	}
	return false, s.Err()
}
