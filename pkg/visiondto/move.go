package visiondto

// Candidate is one ranked engine suggestion.
type Candidate struct {
	Move      string   `json:"move"`
	EvalCP    int      `json:"eval_cp"`
	Mate      int      `json:"mate,omitempty"`
	Principal []string `json:"pv,omitempty"`
}

type Timings struct {
	ExtractMS  int64 `json:"extract_ms"`
	ClassifyMS int64 `json:"classify_ms"`
	EngineMS   int64 `json:"engine_ms"`
	TotalMS    int64 `json:"total_ms"`
}

// MoveResponse answers one submitted capture. Move is empty exactly when
// Reason is set.
type MoveResponse struct {
	GameID            string      `json:"game_id"`
	CycleID           string      `json:"cycle_id"`
	Seq               uint64      `json:"seq"`
	Turn              string      `json:"turn"`
	Move              string      `json:"move,omitempty"`
	Reason            string      `json:"reason,omitempty"`
	Message           string      `json:"message"`
	Retryable         bool        `json:"retryable,omitempty"`
	Stale             bool        `json:"stale,omitempty"`
	FEN               string      `json:"fen"`
	PostFEN           string      `json:"post_fen,omitempty"`
	AvoidedRepetition bool        `json:"avoided_repetition,omitempty"`
	Candidates        []Candidate `json:"candidates,omitempty"`
	Grid              []string    `json:"grid,omitempty"`
	LowConfidence     []int       `json:"low_confidence,omitempty"`
	Timings           Timings     `json:"timings"`
	DebugImage        string      `json:"debug_image,omitempty"`
}
