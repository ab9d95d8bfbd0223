// Package scriptvm runs remote script text with the yaegi Go interpreter.
//
// A remote script is the body of a function returning one value, so
//
//	return strings.Repeat("ab", 2)
//
// yields "abab". Allowed stdlib packages and any extra libraries are
// imported up front.
package scriptvm

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"reflect"

	"dreadlink/remote"

	"github.com/traefik/yaegi/interp"
)

// Load status codes reported in "error parsing buffer: <code>".
const (
	LoadErrSyntax  = 3
	LoadErrCompile = 4
)

// Engine implements remote.ScriptEngine. It is not safe for concurrent use.
type Engine struct {
	i      *interp.Interpreter
	chunks int
}

// New creates an interpreter with the restricted stdlib plus extra symbol
// tables such as Library.
func New(extra ...interp.Exports) (*Engine, error) {
	i := interp.New(interp.Options{})
	std := Restricted()
	i.Use(std)
	for _, ex := range extra {
		i.Use(ex)
	}
	all := append([]interp.Exports{std}, extra...)
	if _, err := i.Eval(importBlock(all...)); err != nil {
		return nil, fmt.Errorf("scriptvm: import prelude: %w", err)
	}
	return &Engine{i: i}, nil
}

// chunkDecl declares src as the body of a function called name.
func chunkDecl(name, src string) string {
	return "func " + name + "() interface{} {\n" + src + "\n}"
}

type chunk struct {
	fn func() interface{}
}

// Load compiles src as a function body without running it.
func (e *Engine) Load(src string) (c remote.Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			c = nil
			err = &remote.LoadError{Code: LoadErrCompile, Err: fmt.Errorf("%v", r)}
		}
	}()
	if err := vetChunk(src); err != nil {
		return nil, err
	}
	e.chunks++
	name := fmt.Sprintf("remoteChunk%d", e.chunks)
	if _, err := e.i.Eval(chunkDecl(name, src)); err != nil {
		return nil, &remote.LoadError{Code: loadCode(err), Err: err}
	}
	v, err := e.i.Eval(name)
	if err != nil {
		return nil, &remote.LoadError{Code: LoadErrCompile, Err: err}
	}
	fn, ok := v.Interface().(func() interface{})
	if !ok {
		return nil, &remote.LoadError{Code: LoadErrCompile, Err: errors.New("script did not compile to a function")}
	}
	return chunk{fn: fn}, nil
}

// vetChunk parses src on its own so syntax errors get a stable code. Code
// that starts goroutines is refused; their panics escape Execute.
func vetChunk(src string) error {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "remote", "package remote\n\n"+chunkDecl("chunk", src)+"\n", 0)
	if err != nil {
		return &remote.LoadError{Code: LoadErrSyntax, Err: err}
	}
	if err := checkSpawns(fset, f); err != nil {
		return &remote.LoadError{Code: LoadErrCompile, Err: err}
	}
	return nil
}

// ErrSpawn reports a script that starts a goroutine.
var ErrSpawn = errors.New("scripts may not start goroutines")

// checkSpawns rejects go statements and time.AfterFunc calls.
func checkSpawns(fset *token.FileSet, node ast.Node) error {
	var found error
	ast.Inspect(node, func(n ast.Node) bool {
		if found != nil {
			return false
		}
		switch x := n.(type) {
		case *ast.GoStmt:
			found = fmt.Errorf("%v: %w", fset.Position(x.Pos()), ErrSpawn)
		case *ast.SelectorExpr:
			if id, ok := x.X.(*ast.Ident); ok && id.Name == "time" && x.Sel.Name == "AfterFunc" {
				found = fmt.Errorf("%v: time.AfterFunc: %w", fset.Position(x.Pos()), ErrSpawn)
			}
		}
		return found == nil
	})
	return found
}

// VetFile applies the goroutine check to a whole Go source file, as used
// for host scripts.
func VetFile(name string, src []byte) error {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, name, src, 0)
	if err != nil {
		return err
	}
	return checkSpawns(fset, f)
}

func loadCode(err error) int {
	var list scanner.ErrorList
	if errors.As(err, &list) {
		return LoadErrSyntax
	}
	var one *scanner.Error
	if errors.As(err, &one) {
		return LoadErrSyntax
	}
	return LoadErrCompile
}

// Run calls the compiled body. Panics propagate to the caller, which
// recovers them.
func (c chunk) Run() (any, error) {
	return c.fn(), nil
}

// Display converts a script value to text.
func (e *Engine) Display(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case string:
		return x
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
	}
	return fmt.Sprint(v)
}

// Execute runs src through remote.Execute on this engine.
func (e *Engine) Execute(src string) remote.ExecResult {
	return remote.Execute(e, src)
}
