package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kasuganosora/desktoppet/game/geom"
	"github.com/kasuganosora/desktoppet/game/input"
	"github.com/kasuganosora/desktoppet/game/sensor"
	"go.uber.org/zap"
)

var errMissingPoint = errors.New("x and y are required")

// PetHandlers turns overlay messages into sensor readings and inbox events.
type PetHandlers struct {
	env    *sensor.Published
	inbox  *input.Inbox
	logger *zap.Logger
}

func NewPetHandlers(env *sensor.Published, inbox *input.Inbox, logger *zap.Logger) *PetHandlers {
	return &PetHandlers{env: env, inbox: inbox, logger: logger}
}

// RegisterHandlers registers all overlay message handlers on the router.
func (h *PetHandlers) RegisterHandlers(r *Router) {
	r.On("env", h.HandleEnv)
	r.On("feed", h.HandleFeed)
	r.On("pet", h.HandlePet)
	r.On("drag_start", h.HandleDragStart)
	r.On("drag_move", h.HandleDragMove)
	r.On("drag_end", h.HandleDragEnd)
	r.On("ping", h.HandlePing)
}

// HandleEnv publishes a windowing reading. The receive time replaces any
// client timestamp so staleness is judged on one clock.
func (h *PetHandlers) HandleEnv(_ context.Context, _ *Session, payload json.RawMessage) error {
	var r sensor.Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		return fmt.Errorf("env: %w", err)
	}
	r.At = time.Time{}
	h.env.Publish(r)
	return nil
}

type magnitudePayload struct {
	Magnitude *float64 `json:"magnitude"`
}

func magnitude(payload json.RawMessage) (float64, error) {
	if len(payload) == 0 {
		return 1, nil
	}
	var p magnitudePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return 0, err
	}
	if p.Magnitude == nil {
		return 1, nil
	}
	return *p.Magnitude, nil
}

type pointPayload struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

func point(payload json.RawMessage) (geom.Point, error) {
	var p pointPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return geom.Point{}, err
	}
	if p.X == nil || p.Y == nil {
		return geom.Point{}, errMissingPoint
	}
	return geom.Point{X: *p.X, Y: *p.Y}, nil
}

func (h *PetHandlers) queued(kind string, ok bool) {
	if !ok {
		h.logger.Warn("inbox full, event dropped", zap.String("kind", kind))
	}
}

func (h *PetHandlers) HandleFeed(_ context.Context, _ *Session, payload json.RawMessage) error {
	m, err := magnitude(payload)
	if err != nil {
		return fmt.Errorf("feed: %w", err)
	}
	h.queued("feed", h.inbox.Feed(m))
	return nil
}

func (h *PetHandlers) HandlePet(_ context.Context, _ *Session, payload json.RawMessage) error {
	m, err := magnitude(payload)
	if err != nil {
		return fmt.Errorf("pet: %w", err)
	}
	h.queued("pet", h.inbox.Pet(m))
	return nil
}

func (h *PetHandlers) HandleDragStart(_ context.Context, _ *Session, payload json.RawMessage) error {
	p, err := point(payload)
	if err != nil {
		return fmt.Errorf("drag_start: %w", err)
	}
	h.queued("drag_start", h.inbox.DragStart(p))
	return nil
}

func (h *PetHandlers) HandleDragMove(_ context.Context, _ *Session, payload json.RawMessage) error {
	p, err := point(payload)
	if err != nil {
		return fmt.Errorf("drag_move: %w", err)
	}
	h.queued("drag_move", h.inbox.DragMove(p))
	return nil
}

func (h *PetHandlers) HandleDragEnd(_ context.Context, _ *Session, _ json.RawMessage) error {
	h.queued("drag_end", h.inbox.DragEnd())
	return nil
}

// HandlePing echoes the client timestamp for latency measurement.
func (h *PetHandlers) HandlePing(_ context.Context, s *Session, payload json.RawMessage) error {
	s.Send(&Packet{Type: "pong", Payload: payload})
	return nil
}
