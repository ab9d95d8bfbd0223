package remote

import (
	"errors"
	"fmt"
)

// ScriptEngine runs remote script text. Implementations live outside this
// package; see scriptvm.
type ScriptEngine interface {
	// Load parses and compiles src without running it. Failures should be
	// reported as *LoadError.
	Load(src string) (Chunk, error)
	// Display converts any value to the text sent back to the client.
	Display(v any) string
}

// Chunk is a loaded script ready to run.
type Chunk interface {
	Run() (any, error)
}

// LoadError reports a script that failed to load. Code is the engine's
// numeric load status.
type LoadError struct {
	Code int
	Err  error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("error parsing buffer: %d", e.Code)
	}
	return fmt.Sprintf("error parsing buffer: %d: %v", e.Code, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ExecResult is everything a script execution reports to the client.
type ExecResult struct {
	Success bool
	Text    string
}

// Execute loads and runs src. Neither load errors, runtime errors nor
// panics escape; each becomes an unsuccessful result.
func Execute(engine ScriptEngine, src string) ExecResult {
	chunk, err := engine.Load(src)
	if err != nil {
		var le *LoadError
		if !errors.As(err, &le) {
			le = &LoadError{Code: -1, Err: err}
		}
		return ExecResult{Text: le.Error()}
	}
	v, err := runProtected(chunk)
	if err != nil {
		return ExecResult{Text: engine.Display(err)}
	}
	return ExecResult{Success: true, Text: engine.Display(v)}
}

// panicError carries a recovered panic value.
type panicError struct {
	value any
}

func (p *panicError) Error() string {
	if err, ok := p.value.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(p.value)
}

func runProtected(c Chunk) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = &panicError{value: r}
		}
	}()
	return c.Run()
}
