package main

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"dreadlink/scriptvm"

	"github.com/traefik/yaegi/interp"
)

//go:embed scripts
var exampleScripts embed.FS

// hostScript is one loaded Go source file. Init runs once on load and
// OnTick every host tick until the script fails.
type hostScript struct {
	name     string
	path     string
	onTick   func()
	disabled bool
}

type hostScripts struct {
	list []*hostScript
}

// callProtected runs fn and turns a panic into an error.
func callProtected(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	fn()
	return nil
}

func loadScriptSource(name, path string, src []byte, lib interp.Exports) (*hostScript, error) {
	i := interp.New(interp.Options{})
	i.Use(scriptvm.Restricted())
	if lib != nil {
		i.Use(lib)
	}
	// Strip build tags like //go:build which are for the Go toolchain only.
	src = stripGoBuildDirectives(src)
	if err := scriptvm.VetFile(path, src); err != nil {
		return nil, err
	}
	if err := evalProtected(i, string(src)); err != nil {
		return nil, err
	}
	hs := &hostScript{name: name, path: path}
	if v, err := i.Eval("OnTick"); err == nil {
		if fn, ok := v.Interface().(func()); ok {
			hs.onTick = fn
		}
	}
	if v, err := i.Eval("Init"); err == nil {
		if fn, ok := v.Interface().(func()); ok {
			if err := callProtected(fn); err != nil {
				return nil, fmt.Errorf("Init: %w", err)
			}
		}
	}
	return hs, nil
}

func evalProtected(i *interp.Interpreter, src string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	_, err = i.Eval(src)
	return err
}

// stripGoBuildDirectives removes leading build constraints (//go:build, // +build)
// which are meaningful to the Go toolchain but can confuse the interpreter.
func stripGoBuildDirectives(src []byte) []byte {
	lines := strings.Split(string(src), "\n")
	i := 0
	for i < len(lines) {
		l := strings.TrimSpace(lines[i])
		if strings.HasPrefix(l, "package ") {
			break
		}
		if strings.HasPrefix(l, "//go:build") || strings.HasPrefix(l, "// +build") || l == "" {
			i++
			continue
		}
		break
	}
	if i > 0 {
		return []byte(strings.Join(lines[i:], "\n"))
	}
	return src
}

// loadHostScripts loads every .go file in dir in name order. Files that
// fail to load are logged and skipped.
func loadHostScripts(dir string, lib interp.Exports) *hostScripts {
	hs := &hostScripts{}
	if dir == "" {
		return hs
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logWarn("read scripts dir %s: %v", dir, err)
		}
		return hs
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".go") || strings.HasSuffix(e.Name(), "_test.go") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, n := range names {
		p := filepath.Join(dir, n)
		src, err := os.ReadFile(p)
		if err != nil {
			logWarn("read script %s: %v", p, err)
			continue
		}
		s, err := loadScriptSource(strings.TrimSuffix(n, ".go"), p, src, lib)
		if err != nil {
			logError("script %s: %v", p, err)
			continue
		}
		hs.list = append(hs.list, s)
		logDebug("loaded script %s", p)
	}
	if len(hs.list) > 0 {
		logDebug("%d host scripts active", len(hs.list))
	}
	return hs
}

// onTick runs every enabled OnTick hook. A panicking hook is disabled.
func (hs *hostScripts) onTick() {
	for _, s := range hs.list {
		if s.disabled || s.onTick == nil {
			continue
		}
		if err := callProtected(s.onTick); err != nil {
			s.disabled = true
			logError("script %s disabled: %v", s.name, err)
		}
	}
}

func (hs *hostScripts) active() int {
	n := 0
	for _, s := range hs.list {
		if !s.disabled {
			n++
		}
	}
	return n
}

// ensureExampleScripts populates dir with the embedded examples when it has
// no Go files yet.
func ensureExampleScripts(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".go") {
			return nil
		}
	}
	embedded, err := exampleScripts.ReadDir("scripts")
	if err != nil {
		return err
	}
	for _, e := range embedded {
		if e.IsDir() {
			continue
		}
		data, err := exampleScripts.ReadFile(path.Join("scripts", e.Name()))
		if err != nil {
			return err
		}
		dst := filepath.Join(dir, e.Name())
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}
