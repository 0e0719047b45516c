package orchestrator

import (
	"time"

	"github.com/park285/boardsight/internal/chess/boardstate"
	"github.com/park285/boardsight/internal/domain"
)

// Reason explains why a cycle produced no move. Empty means a move was made.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonInvalidFEN         Reason = "invalid_fen"
	ReasonNoCandidates       Reason = "no_candidates"
	ReasonEngineUnreachable  Reason = "engine_unreachable"
	ReasonClassifierFailed   Reason = "classifier_failed"
	ReasonClassifierNotReady Reason = "classifier_not_ready"
	ReasonDegenerateGrid     Reason = "degenerate_grid"
	ReasonBadImage           Reason = "bad_image"
	ReasonSuperseded         Reason = "superseded"
	ReasonCanceled           Reason = "canceled"
)

// Retryable reports whether submitting the same capture again may succeed.
func (r Reason) Retryable() bool {
	switch r {
	case ReasonEngineUnreachable, ReasonClassifierNotReady, ReasonSuperseded, ReasonCanceled:
		return true
	default:
		return false
	}
}

type Timings struct {
	Extract  time.Duration
	Classify time.Duration
	Engine   time.Duration
	Total    time.Duration
}

// MoveResult is the outcome of one capture. Either Move is set or Reason
// says why not; FEN carries the last encoded position either way.
type MoveResult struct {
	GameID            string
	CycleID           string
	Seq               uint64
	Turn              boardstate.Side
	Move              string
	Reason            Reason
	Message           string
	FEN               string
	PostFEN           string
	Candidates        []domain.Candidate
	AvoidedRepetition bool
	Grid              domain.Grid
	LowConfidence     []int
	Timings           Timings
	// Stale is set when a newer capture was submitted while this one ran.
	Stale      bool
	DebugImage string
	CreatedAt  time.Time
}

func (r MoveResult) OK() bool { return r.Reason == ReasonNone && r.Move != "" }

func (r MoveResult) Record(fenHistory, moveHistory []string, castling, enPassant string) domain.CycleRecord {
	return domain.CycleRecord{
		GameID:            r.GameID,
		CycleID:           r.CycleID,
		Seq:               r.Seq,
		Turn:              string(r.Turn),
		FEN:               r.FEN,
		PostFEN:           r.PostFEN,
		Move:              r.Move,
		Reason:            string(r.Reason),
		Message:           r.Message,
		Candidates:        r.Candidates,
		AvoidedRepetition: r.AvoidedRepetition,
		Castling:          castling,
		EnPassant:         enPassant,
		FenHistory:        fenHistory,
		MoveHistory:       moveHistory,
		LowConfidence:     r.LowConfidence,
		ClassifyLatency:   r.Timings.Classify,
		EngineLatency:     r.Timings.Engine,
		TotalLatency:      r.Timings.Total,
		CreatedAt:         r.CreatedAt,
	}
}
