// Package script evaluates designer-authored JavaScript expressions for
// behavior preconditions and utilities inside a locked-down goja runtime.
package script

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// ErrTimeout is returned when a script exceeds the execution time limit.
var ErrTimeout = errors.New("script: execution timed out")

// ErrPanic is returned when evaluation panics inside the runtime.
var ErrPanic = errors.New("script: uncaught exception")

// ErrType is returned when a result cannot be converted to the wanted type.
var ErrType = errors.New("script: unexpected result type")

// Env is the set of variables visible to an expression.
type Env map[string]any

// Program is a compiled expression. It is independent of any runtime.
type Program struct {
	name string
	src  string
	prog *goja.Program
}

func (p *Program) Name() string   { return p.name }
func (p *Program) Source() string { return p.src }

// Compile parses src once. Syntax errors are reported here so malformed
// catalog entries fail at load time rather than mid-simulation.
func Compile(name, src string) (*Program, error) {
	prog, err := goja.Compile(name, src, true)
	if err != nil {
		return nil, fmt.Errorf("script: compile %s: %w", name, err)
	}
	return &Program{name: name, src: src, prog: prog}, nil
}

// Engine owns one runtime. It is used from the tick goroutine only.
type Engine struct {
	vm      *goja.Runtime
	timeout time.Duration
	logger  *zap.Logger
}

// NewEngine creates an Engine with a per-evaluation timeout.
func NewEngine(timeout time.Duration, logger *zap.Logger) *Engine {
	if timeout <= 0 {
		timeout = 50 * time.Millisecond
	}
	return &Engine{vm: newSafeVM(), timeout: timeout, logger: logger}
}

// Run evaluates p with env bound as globals.
func (e *Engine) Run(p *Program, env Env) (goja.Value, error) {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := e.vm.Set(k, env[k]); err != nil {
			return nil, fmt.Errorf("script: bind %s: %w", k, err)
		}
	}

	vm := e.vm
	fired := make(chan struct{})
	timer := time.AfterFunc(e.timeout, func() {
		vm.Interrupt(ErrTimeout)
		close(fired)
	})

	var result goja.Value
	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = ErrPanic
			}
		}()
		result, runErr = vm.RunProgram(p.prog)
	}()
	if !timer.Stop() {
		// The timer has fired or is firing; its interrupt must land before
		// it is cleared below, or it would hit the next evaluation.
		<-fired
	}

	var interrupted *goja.InterruptedError
	if errors.As(runErr, &interrupted) {
		// The runtime is tainted after an interrupt; replace it.
		e.vm = newSafeVM()
		e.logger.Warn("script timed out", zap.String("program", p.name), zap.Duration("timeout", e.timeout))
		return nil, ErrTimeout
	}
	// A timer that fired after the program returned leaves a pending interrupt.
	vm.ClearInterrupt()

	if runErr != nil {
		var ex *goja.Exception
		if errors.As(runErr, &ex) {
			return nil, fmt.Errorf("script: %s: %s", p.name, ex.Error())
		}
		return nil, runErr
	}
	return result, nil
}

// Bool evaluates p and converts the result with JavaScript truthiness.
func (e *Engine) Bool(p *Program, env Env) (bool, error) {
	v, err := e.Run(p, env)
	if err != nil {
		return false, err
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return false, nil
	}
	return v.ToBoolean(), nil
}

// Float evaluates p and requires a finite numeric result.
func (e *Engine) Float(p *Program, env Env) (float64, error) {
	v, err := e.Run(p, env)
	if err != nil {
		return 0, err
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0, fmt.Errorf("%w: %s returned no value", ErrType, p.name)
	}
	var f float64
	switch n := v.Export().(type) {
	case int64:
		f = float64(n)
	case float64:
		f = n
	default:
		return 0, fmt.Errorf("%w: %s returned %T", ErrType, p.name, n)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s returned %v", ErrType, p.name, f)
	}
	return f, nil
}

// newSafeVM creates a goja Runtime with dangerous globals removed.
func newSafeVM() *goja.Runtime {
	vm := goja.New()
	// Block dangerous globals.
	for _, name := range []string{"require", "process", "fetch", "XMLHttpRequest", "eval", "Function"} {
		vm.Set(name, goja.Undefined())
	}
	// Provide safe Math subset.
	mathObj := vm.NewObject()
	_ = mathObj.Set("floor", math.Floor)
	_ = mathObj.Set("ceil", math.Ceil)
	_ = mathObj.Set("round", math.Round)
	_ = mathObj.Set("abs", math.Abs)
	_ = mathObj.Set("sqrt", math.Sqrt)
	_ = mathObj.Set("max", math.Max)
	_ = mathObj.Set("min", math.Min)
	_ = mathObj.Set("random", func() float64 { return 0 }) // deterministic simulation
	vm.Set("Math", mathObj)
	vm.Set("clamp", func(v, lo, hi float64) float64 { return math.Min(math.Max(v, lo), hi) })
	return vm
}
