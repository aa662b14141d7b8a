package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/l1jgo/lockstep/internal/agent"
	"github.com/l1jgo/lockstep/internal/command"
	"github.com/l1jgo/lockstep/internal/determinism"
	"github.com/l1jgo/lockstep/internal/physics"
)

// ErrMatchNotFound is returned when a match id has no journal.
var ErrMatchNotFound = errors.New("persist: match not found")

// MatchSettings is everything a replay needs to rebuild the simulation.
type MatchSettings struct {
	Seed                uint64          `msgpack:"seed"`
	Participants        int             `msgpack:"participants"`
	Controllers         int             `msgpack:"controllers"`
	FrameRate           int             `msgpack:"frame_rate"`
	InfluenceResolution int             `msgpack:"influence_resolution"`
	InputDelay          int             `msgpack:"input_delay"`
	MaxGlobalAgents     int             `msgpack:"max_global_agents"`
	MaxLocalAgents      int             `msgpack:"max_local_agents"`
	Physics             physics.Config  `msgpack:"physics"`
	Types               []agent.TypeDef `msgpack:"types"`
}

// MatchRow is one row of the matches table.
type MatchRow struct {
	ID        int64
	Settings  MatchSettings
	StartedAt time.Time
	EndedAt   *time.Time
	Frames    int32
	Digest    []byte
}

// FrameRow is one merged influence frame.
type FrameRow struct {
	Frame   int32
	Batches []*command.Batch
}

// HashRow is the local state hash at the end of a simulated frame.
type HashRow struct {
	Frame int32
	Hash  int32
}

// DesyncRow is a reported mismatch plus the local snapshot taken at the time.
type DesyncRow struct {
	Frame    int32
	Peer     uint8
	Local    int32
	Remote   int32
	Snapshot *determinism.Snapshot
}

type JournalRepo struct {
	db *DB
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// CreateMatch inserts a new match and returns its id.
func (r *JournalRepo) CreateMatch(ctx context.Context, s MatchSettings) (int64, error) {
	settings, err := msgpack.Marshal(&s)
	if err != nil {
		return 0, fmt.Errorf("encode match settings: %w", err)
	}
	var id int64
	err = r.db.Pool.QueryRow(ctx,
		`INSERT INTO matches (seed, participants, settings) VALUES ($1, $2, $3) RETURNING id`,
		int64(s.Seed), s.Participants, settings,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create match: %w", err)
	}
	return id, nil
}

// AppendFrames stores merged frames, lz4-compressed, in one transaction.
func (r *JournalRepo) AppendFrames(ctx context.Context, matchID int64, frames []FrameRow) error {
	if len(frames) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, f := range frames {
		payload, err := EncodeFrame(f.Batches)
		if err != nil {
			return fmt.Errorf("encode frame %d: %w", f.Frame, err)
		}
		batch.Queue(
			`INSERT INTO match_frames (match_id, frame, payload) VALUES ($1, $2, $3)
			 ON CONFLICT (match_id, frame) DO NOTHING`,
			matchID, f.Frame, payload,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert frames: %w", err)
	}
	return tx.Commit(ctx)
}

// AppendHashes stores per-frame state hashes.
func (r *JournalRepo) AppendHashes(ctx context.Context, matchID int64, hashes []HashRow) error {
	if len(hashes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, h := range hashes {
		batch.Queue(
			`INSERT INTO match_hashes (match_id, frame, hash) VALUES ($1, $2, $3)
			 ON CONFLICT (match_id, frame) DO UPDATE SET hash = EXCLUDED.hash`,
			matchID, h.Frame, h.Hash,
		)
	}
	if err := r.db.Pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert hashes: %w", err)
	}
	return nil
}

// InsertDesync stores a mismatch with its msgpack snapshot.
func (r *JournalRepo) InsertDesync(ctx context.Context, matchID int64, d DesyncRow) error {
	snap, err := d.Snapshot.Encode()
	if err != nil {
		return err
	}
	_, err = r.db.Pool.Exec(ctx,
		`INSERT INTO match_desyncs (match_id, frame, peer, local_hash, remote_hash, snapshot)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		matchID, d.Frame, int16(d.Peer), d.Local, d.Remote, snap,
	)
	if err != nil {
		return fmt.Errorf("insert desync: %w", err)
	}
	return nil
}

// FinishMatch closes a match with its frame count and input digest.
func (r *JournalRepo) FinishMatch(ctx context.Context, matchID int64, frames int32, digest []byte) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE matches SET ended_at = now(), frames = $2, digest = $3 WHERE id = $1`,
		matchID, frames, digest,
	)
	if err != nil {
		return fmt.Errorf("finish match: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMatchNotFound
	}
	return nil
}

// LoadMatch reads a match header.
func (r *JournalRepo) LoadMatch(ctx context.Context, matchID int64) (*MatchRow, error) {
	m := &MatchRow{ID: matchID}
	var settings []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT settings, started_at, ended_at, frames, digest FROM matches WHERE id = $1`,
		matchID,
	).Scan(&settings, &m.StartedAt, &m.EndedAt, &m.Frames, &m.Digest)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load match: %w", err)
	}
	if err := msgpack.Unmarshal(settings, &m.Settings); err != nil {
		return nil, fmt.Errorf("decode match settings: %w", err)
	}
	return m, nil
}

// LoadFrames reads every merged frame of a match in frame order.
func (r *JournalRepo) LoadFrames(ctx context.Context, matchID int64) ([]FrameRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT frame, payload FROM match_frames WHERE match_id = $1 ORDER BY frame`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("load frames: %w", err)
	}
	defer rows.Close()

	var result []FrameRow
	for rows.Next() {
		var f FrameRow
		var payload []byte
		if err := rows.Scan(&f.Frame, &payload); err != nil {
			return nil, err
		}
		if f.Batches, err = DecodeFrame(payload); err != nil {
			return nil, fmt.Errorf("frame %d: %w", f.Frame, err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

// LoadHashes reads the recorded hashes keyed by frame.
func (r *JournalRepo) LoadHashes(ctx context.Context, matchID int64) (map[int32]int32, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT frame, hash FROM match_hashes WHERE match_id = $1`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("load hashes: %w", err)
	}
	defer rows.Close()

	result := make(map[int32]int32)
	for rows.Next() {
		var frame, hash int32
		if err := rows.Scan(&frame, &hash); err != nil {
			return nil, err
		}
		result[frame] = hash
	}
	return result, rows.Err()
}

// LoadDesyncs reads the recorded mismatches of a match.
func (r *JournalRepo) LoadDesyncs(ctx context.Context, matchID int64) ([]DesyncRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT frame, peer, local_hash, remote_hash, snapshot
		 FROM match_desyncs WHERE match_id = $1 ORDER BY frame, id`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("load desyncs: %w", err)
	}
	defer rows.Close()

	var result []DesyncRow
	for rows.Next() {
		var d DesyncRow
		var peer int16
		var snap []byte
		if err := rows.Scan(&d.Frame, &peer, &d.Local, &d.Remote, &snap); err != nil {
			return nil, err
		}
		d.Peer = uint8(peer)
		if d.Snapshot, err = determinism.DecodeSnapshot(snap); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}
