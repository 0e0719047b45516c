package httpapi

import (
	"github.com/park285/boardsight/internal/chess"
	"github.com/park285/boardsight/internal/domain"
	"github.com/park285/boardsight/internal/service/orchestrator"
	"github.com/park285/boardsight/pkg/visiondto"
)

// ToMoveResponse converts a result to its wire form.
func ToMoveResponse(res orchestrator.MoveResult) visiondto.MoveResponse {
	out := visiondto.MoveResponse{
		GameID:            res.GameID,
		CycleID:           res.CycleID,
		Seq:               res.Seq,
		Turn:              string(res.Turn),
		Move:              res.Move,
		Reason:            string(res.Reason),
		Message:           res.Message,
		Retryable:         res.Reason.Retryable(),
		Stale:             res.Stale,
		FEN:               res.FEN,
		PostFEN:           res.PostFEN,
		AvoidedRepetition: res.AvoidedRepetition,
		Candidates:        toCandidates(res.Candidates),
		LowConfidence:     res.LowConfidence,
		DebugImage:        res.DebugImage,
		Timings: visiondto.Timings{
			ExtractMS:  res.Timings.Extract.Milliseconds(),
			ClassifyMS: res.Timings.Classify.Milliseconds(),
			EngineMS:   res.Timings.Engine.Milliseconds(),
			TotalMS:    res.Timings.Total.Milliseconds(),
		},
	}
	if len(res.Grid) > 0 {
		out.Grid = make([]string, len(res.Grid))
		for i, l := range res.Grid {
			out.Grid[i] = l.String()
		}
	}
	return out
}

func recordResponse(rec domain.CycleRecord) visiondto.MoveResponse {
	return visiondto.MoveResponse{
		GameID:            rec.GameID,
		CycleID:           rec.CycleID,
		Seq:               rec.Seq,
		Turn:              rec.Turn,
		Move:              rec.Move,
		Reason:            rec.Reason,
		Message:           rec.Message,
		Retryable:         orchestrator.Reason(rec.Reason).Retryable(),
		FEN:               rec.FEN,
		PostFEN:           rec.PostFEN,
		AvoidedRepetition: rec.AvoidedRepetition,
		Candidates:        toCandidates(rec.Candidates),
		LowConfidence:     rec.LowConfidence,
		Timings: visiondto.Timings{
			ClassifyMS: rec.ClassifyLatency.Milliseconds(),
			EngineMS:   rec.EngineLatency.Milliseconds(),
			TotalMS:    rec.TotalLatency.Milliseconds(),
		},
	}
}

func toCandidates(in []domain.Candidate) []visiondto.Candidate {
	if len(in) == 0 {
		return nil
	}
	out := make([]visiondto.Candidate, len(in))
	for i, c := range in {
		out[i] = visiondto.Candidate{Move: c.Move, EvalCP: c.EvalCP, Mate: c.Mate, Principal: c.Principal}
	}
	return out
}

func toStateResponse(gameID string, gs chess.GameState) visiondto.StateResponse {
	fens := gs.FenHistory
	if fens == nil {
		fens = []string{}
	}
	moves := gs.MoveHistory
	if moves == nil {
		moves = []string{}
	}
	return visiondto.StateResponse{
		GameID:         gameID,
		State:          gs.State.String(),
		LastFEN:        gs.LastFEN,
		Turn:           string(gs.Turn),
		Castling:       gs.Castling,
		EnPassant:      gs.EnPassant,
		HalfmoveClock:  gs.HalfmoveClock,
		FullmoveNumber: gs.FullmoveNumber,
		FenHistory:     fens,
		MoveHistory:    moves,
	}
}
