package domain

import "time"

type Candidate struct {
	Move      string
	EvalCP    int
	Mate      int
	Principal []string
}

type CycleRecord struct {
	GameID            string
	CycleID           string
	Seq               uint64
	Turn              string
	FEN               string
	PostFEN           string
	Move              string
	Reason            string
	Message           string
	Candidates        []Candidate
	AvoidedRepetition bool
	Castling          string
	EnPassant         string
	FenHistory        []string
	MoveHistory       []string
	LowConfidence     []int
	ClassifyLatency   time.Duration
	EngineLatency     time.Duration
	TotalLatency      time.Duration
	CreatedAt         time.Time
}

func (r CycleRecord) HasMove() bool { return r.Move != "" && r.Reason == "" }
