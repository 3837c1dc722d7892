// Package scripting isolates the evaluation of user-supplied tag scripts.
package scripting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// ErrEmptyScript marks a script with nothing to evaluate. It is a skip
// signal for callers, not an evaluation failure.
var ErrEmptyScript = errors.New("empty script")

// EvaluationError is a user expression failure. It is scoped to the one tag
// whose script failed and never propagates into the scheduler loop.
type EvaluationError struct {
	Message string
}

func (e *EvaluationError) Error() string {
	return e.Message
}

// Evaluator executes one tag's script in isolation, returning a value or an
// *EvaluationError. Implementations must never panic across this boundary.
type Evaluator interface {
	Evaluate(ctx context.Context, script string) (interface{}, error)
}

// LuaEvaluator runs scripts in a fresh in-process Lua state per call. The
// script may be a bare expression or a chunk that returns a value.
type LuaEvaluator struct {
	timeout time.Duration
}

// NewLuaEvaluator creates an evaluator. A non-zero timeout bounds each call,
// so a hung script stalls only the tick that started it.
func NewLuaEvaluator(timeout time.Duration) *LuaEvaluator {
	return &LuaEvaluator{timeout: timeout}
}

// Evaluate runs the script and converts its result to a Go value.
func (e *LuaEvaluator) Evaluate(ctx context.Context, script string) (value interface{}, err error) {
	script = strings.TrimSpace(script)
	if script == "" {
		return nil, ErrEmptyScript
	}

	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = &EvaluationError{Message: fmt.Sprintf("script panic: %v", r)}
		}
	}()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	state := lua.NewState()
	defer state.Close()
	state.SetContext(ctx)

	// Try the script as a single expression first, then as a chunk body.
	if exprErr := state.DoString("return (" + script + ")"); exprErr != nil {
		state.SetTop(0)
		if chunkErr := state.DoString(script); chunkErr != nil {
			return nil, &EvaluationError{Message: chunkErr.Error()}
		}
	}

	if state.GetTop() == 0 {
		return nil, nil
	}
	return fromLua(state.Get(-1)), nil
}

func fromLua(v lua.LValue) interface{} {
	switch lv := v.(type) {
	case lua.LNumber:
		return float64(lv)
	case lua.LString:
		return string(lv)
	case lua.LBool:
		return bool(lv)
	case *lua.LNilType:
		return nil
	default:
		return lv.String()
	}
}
