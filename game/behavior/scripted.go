package behavior

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/kasuganosora/desktoppet/game/geom"
	"github.com/kasuganosora/desktoppet/game/script"
	"go.uber.org/zap"
)

// Env is the variable set visible to catalog expressions.
type Env struct {
	Hunger         float64 `expr:"hunger"`
	Energy         float64 `expr:"energy"`
	Boredom        float64 `expr:"boredom"`
	Affection      float64 `expr:"affection"`
	Mood           string  `expr:"mood"`
	CursorDistance float64 `expr:"cursor_distance"`
	HasWindow      bool    `expr:"has_window"`
	Degraded       bool    `expr:"degraded"`
	X              float64 `expr:"x"`
	Y              float64 `expr:"y"`
	ScreenW        float64 `expr:"screen_w"`
	ScreenH        float64 `expr:"screen_h"`
}

func NewEnv(c Context) Env {
	return Env{
		Hunger:         c.Needs.Hunger,
		Energy:         c.Needs.Energy,
		Boredom:        c.Needs.Boredom,
		Affection:      c.Needs.Affection,
		Mood:           string(c.Needs.Mood()),
		CursorDistance: geom.Distance(c.Position, c.Env.Cursor),
		HasWindow:      c.Env.HasWindow,
		Degraded:       c.Env.Degraded,
		X:              c.Position.X,
		Y:              c.Position.Y,
		ScreenW:        c.Env.Screen.W,
		ScreenH:        c.Env.Screen.H,
	}
}

// Vars exposes the same names to JavaScript.
func (e Env) Vars() script.Env {
	return script.Env{
		"hunger":          e.Hunger,
		"energy":          e.Energy,
		"boredom":         e.Boredom,
		"affection":       e.Affection,
		"mood":            e.Mood,
		"cursor_distance": e.CursorDistance,
		"has_window":      e.HasWindow,
		"degraded":        e.Degraded,
		"x":               e.X,
		"y":               e.Y,
		"screen_w":        e.ScreenW,
		"screen_h":        e.ScreenH,
	}
}

type condition interface {
	eval(Env) (bool, error)
}

type scorer interface {
	eval(Env) (float64, error)
}

type exprCondition struct{ prog *vm.Program }

func (c exprCondition) eval(env Env) (bool, error) {
	out, err := expr.Run(c.prog, env)
	if err != nil {
		return false, err
	}
	b, _ := out.(bool)
	return b, nil
}

type exprScorer struct{ prog *vm.Program }

func (s exprScorer) eval(env Env) (float64, error) {
	out, err := expr.Run(s.prog, env)
	if err != nil {
		return 0, err
	}
	switch v := out.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	}
	return 0, fmt.Errorf("utility returned %T", out)
}

type jsCondition struct {
	prog   *script.Program
	engine *script.Engine
}

func (c jsCondition) eval(env Env) (bool, error) { return c.engine.Bool(c.prog, env.Vars()) }

type jsScorer struct {
	prog   *script.Program
	engine *script.Engine
}

func (s jsScorer) eval(env Env) (float64, error) { return s.engine.Float(s.prog, env.Vars()) }

// Scripted is a Definition loaded from a catalog file. Evaluation errors
// make the behavior ineligible (or score zero) for that tick and are logged
// once until the expression succeeds again.
type Scripted struct {
	id      string
	profile Profile
	cond    condition
	score   scorer
	logger  *zap.Logger
	failing bool
}

func (s *Scripted) ID() string { return s.id }

func (s *Scripted) Profile() Profile { return s.profile }

func (s *Scripted) HasPrecondition() bool { return s.cond != nil }

func (s *Scripted) Precondition(ctx Context) bool {
	if s.cond == nil {
		return true
	}
	ok, err := s.cond.eval(NewEnv(ctx))
	s.report("precondition", err)
	return err == nil && ok
}

func (s *Scripted) Utility(ctx Context) float64 {
	u, err := s.score.eval(NewEnv(ctx))
	s.report("utility", err)
	if err != nil {
		return 0
	}
	return u
}

func (s *Scripted) report(what string, err error) {
	switch {
	case err != nil && !s.failing:
		s.failing = true
		s.logger.Warn("behavior expression failed",
			zap.String("behavior", s.id), zap.String("expression", what), zap.Error(err))
	case err == nil && s.failing:
		s.failing = false
	}
}

func compileExpr(id string, fd FileDefinition) (condition, scorer, error) {
	var cond condition
	if fd.Precondition != "" {
		prog, err := expr.Compile(fd.Precondition, expr.Env(Env{}), expr.AsBool())
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %q precondition: %v", ErrInvalidDefinition, id, err)
		}
		cond = exprCondition{prog: prog}
	}
	prog, err := expr.Compile(fd.Utility, expr.Env(Env{}), expr.AsFloat64())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %q utility: %v", ErrInvalidDefinition, id, err)
	}
	return cond, exprScorer{prog: prog}, nil
}

func compileJS(id string, fd FileDefinition, engine *script.Engine) (condition, scorer, error) {
	if engine == nil {
		return nil, nil, fmt.Errorf("%w: %q uses js but no script engine is configured", ErrInvalidDefinition, id)
	}
	// A probe evaluation catches reference errors that compile cannot.
	probe := Env{}
	var cond condition
	if fd.Precondition != "" {
		prog, err := script.Compile(id+".precondition", fd.Precondition)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %q precondition: %v", ErrInvalidDefinition, id, err)
		}
		c := jsCondition{prog: prog, engine: engine}
		if _, err := c.eval(probe); err != nil {
			return nil, nil, fmt.Errorf("%w: %q precondition: %v", ErrInvalidDefinition, id, err)
		}
		cond = c
	}
	prog, err := script.Compile(id+".utility", fd.Utility)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %q utility: %v", ErrInvalidDefinition, id, err)
	}
	s := jsScorer{prog: prog, engine: engine}
	if _, err := s.eval(probe); err != nil {
		return nil, nil, fmt.Errorf("%w: %q utility: %v", ErrInvalidDefinition, id, err)
	}
	return cond, s, nil
}
