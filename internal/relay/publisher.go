package relay

import (
	"context"
	"errors"
	"strings"

	"github.com/park285/boardsight/internal/service/orchestrator"
	"github.com/park285/boardsight/internal/vision"
	"go.uber.org/zap"
)

type Mode string

const (
	ModeHTTP Mode = "http"
	ModeWS   Mode = "ws"
	ModeAuto Mode = "auto"
)

func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeWS:
		return ModeWS
	case ModeAuto:
		return ModeAuto
	default:
		return ModeHTTP
	}
}

// Publisher turns move results into click coordinates and sends them.
// In auto mode the websocket is preferred while connected, with one HTTP
// fallback per payload.
type Publisher struct {
	mode    Mode
	client  *Client
	ws      *WebSocket
	region  vision.Region
	flipped bool
	dryrun  bool
	logger  *zap.Logger
}

type PublisherConfig struct {
	Mode        Mode
	Region      vision.Region
	PlayAsWhite bool
	DryRun      bool
}

func NewPublisher(cfg PublisherConfig, client *Client, ws *WebSocket, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		mode:    cfg.Mode,
		client:  client,
		ws:      ws,
		region:  cfg.Region,
		flipped: !cfg.PlayAsWhite,
		dryrun:  cfg.DryRun,
		logger:  logger,
	}
}

// Publish implements orchestrator.Publisher.
func (p *Publisher) Publish(ctx context.Context, res orchestrator.MoveResult) error {
	payload := p.Payload(res)
	if p.dryrun {
		p.logger.Info("relay_dryrun", zap.String("cycle_id", payload.CycleID), zap.String("move", payload.Move))
		return nil
	}
	switch p.mode {
	case ModeWS:
		return p.sendWS(ctx, payload)
	case ModeAuto:
		if p.ws != nil && p.ws.Connected() {
			err := p.sendWS(ctx, payload)
			if err == nil {
				return nil
			}
			p.logger.Warn("relay_fallback", zap.String("cycle_id", payload.CycleID), zap.Error(err))
		}
		return p.sendHTTP(ctx, payload)
	default:
		return p.sendHTTP(ctx, payload)
	}
}

func (p *Publisher) sendWS(ctx context.Context, payload MovePayload) error {
	if p.ws == nil {
		return errors.New("ws relay not available")
	}
	return p.ws.WriteJSON(ctx, payload)
}

func (p *Publisher) sendHTTP(ctx context.Context, payload MovePayload) error {
	if p.client == nil {
		return errors.New("http relay not available")
	}
	_, err := p.client.PostMove(ctx, payload)
	return err
}

// Payload builds the wire message for res. Coordinates are only filled when
// a capture region is configured.
func (p *Publisher) Payload(res orchestrator.MoveResult) MovePayload {
	out := MovePayload{
		Type:      "move",
		GameID:    res.GameID,
		CycleID:   res.CycleID,
		Seq:       res.Seq,
		Move:      res.Move,
		FEN:       res.FEN,
		Reason:    string(res.Reason),
		Message:   res.Message,
		Retryable: res.Reason.Retryable(),
	}
	if !res.OK() {
		out.Type = "no_move"
		return out
	}
	if len(res.Move) == 5 {
		out.Promotion = res.Move[4:]
	}
	if p.region.Empty() {
		return out
	}
	from, to, err := vision.MoveSquares(res.Move)
	if err != nil {
		return out
	}
	if pt, err := vision.SquareCenter(p.region, from, p.flipped); err == nil {
		out.From = &Point{X: pt.X, Y: pt.Y}
	}
	if pt, err := vision.SquareCenter(p.region, to, p.flipped); err == nil {
		out.To = &Point{X: pt.X, Y: pt.Y}
	}
	return out
}
