package visiondto

type StateResponse struct {
	GameID         string   `json:"game_id"`
	State          string   `json:"state"`
	LastFEN        string   `json:"last_fen"`
	Turn           string   `json:"turn"`
	Castling       string   `json:"castling"`
	EnPassant      string   `json:"en_passant"`
	HalfmoveClock  int      `json:"halfmove_clock"`
	FullmoveNumber int      `json:"fullmove_number"`
	FenHistory     []string `json:"fen_history"`
	MoveHistory    []string `json:"move_history"`
}

type HealthResponse struct {
	Status          string `json:"status"`
	ClassifierReady bool   `json:"classifier_ready"`
	EngineAlive     bool   `json:"engine_alive"`
}

type NewGameResponse struct {
	GameID string `json:"game_id"`
}
