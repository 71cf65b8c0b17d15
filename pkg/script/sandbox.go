package script

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/promptflow/pkg/domain"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// DefaultTimeout bounds a script run when the caller's context has no deadline.
const DefaultTimeout = 5 * time.Second

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var reserved = map[string]bool{
	"and": true, "break": true, "do": true, "else": true, "elseif": true, "end": true,
	"false": true, "for": true, "function": true, "goto": true, "if": true, "in": true,
	"local": true, "nil": true, "not": true, "or": true, "repeat": true, "return": true,
	"then": true, "true": true, "until": true, "while": true,
	"state": true, "main": true,
}

var removedGlobals = []string{"dofile", "loadfile", "load", "loadstring", "require", "module", "print", "collectgarbage"}

// Error wraps a compile or runtime failure of a named script.
type Error struct {
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("script %s: %v", e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Program is a compiled script. It is safe for concurrent use; every run
// gets its own interpreter.
type Program struct {
	Name    string
	Source  string
	Timeout time.Duration
	proto   *lua.FunctionProto
}

// Compile parses src once so it can be run many times.
func Compile(name, src string) (*Program, error) {
	chunk, err := parse.Parse(strings.NewReader(src), name)
	if err != nil {
		return nil, &Error{Name: name, Err: err}
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, &Error{Name: name, Err: err}
	}
	return &Program{Name: name, Source: src, Timeout: DefaultTimeout, proto: proto}, nil
}

// CompileExpression compiles expr as a single Lua expression when it is one,
// and as a regular chunk otherwise. Assertions such as `x == "1"` and full
// programs with a main function are both accepted.
func CompileExpression(name, expr string) (*Program, error) {
	if p, err := Compile(name, "return "+expr); err == nil {
		p.Source = expr
		return p, nil
	}
	return Compile(name, expr)
}

// Truthy runs the program against st and reports the Lua truthiness of its answer.
func (p *Program) Truthy(ctx context.Context, st *domain.State) (bool, error) {
	var ok bool
	err := p.exec(ctx, st, nil, func(_ *lua.LState, ret lua.LValue, _ *lua.LTable) error {
		ok = lua.LVAsBool(ret)
		return nil
	})
	return ok, err
}

// Eval runs the program with extra string globals and reports truthiness.
// The state is not exposed.
func (p *Program) Eval(ctx context.Context, vars map[string]string) (bool, error) {
	var ok bool
	err := p.exec(ctx, nil, vars, func(_ *lua.LState, ret lua.LValue, _ *lua.LTable) error {
		ok = lua.LVAsBool(ret)
		return nil
	})
	return ok, err
}

// Call runs the program against st and returns its answer as text.
// A nil answer returns nil. History appended by the script is written back to st.
func (p *Program) Call(ctx context.Context, st *domain.State) (*string, error) {
	var out *string
	err := p.exec(ctx, st, nil, func(L *lua.LState, ret lua.LValue, tbl *lua.LTable) error {
		if hist, ok := tbl.RawGetString("history").(*lua.LTable); ok {
			st.History = readHistory(hist)
		}
		if ret == lua.LNil {
			return nil
		}
		s, err := toText(ret)
		if err != nil {
			return err
		}
		out = &s
		return nil
	})
	return out, err
}

func (p *Program) exec(ctx context.Context, st *domain.State, vars map[string]string, done func(*lua.LState, lua.LValue, *lua.LTable) error) error {
	if _, ok := ctx.Deadline(); !ok && p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	L, err := newInterpreter(ctx)
	if err != nil {
		return &Error{Name: p.Name, Err: err}
	}
	defer L.Close()

	tbl := L.NewTable()
	if st != nil {
		tbl = stateTable(L, st)
		L.SetGlobal("state", tbl)
		for label, v := range st.Snapshot {
			if identifier.MatchString(label) && !reserved[label] {
				L.SetGlobal(label, lua.LString(v))
			}
		}
	}
	for k, v := range vars {
		L.SetGlobal(k, lua.LString(v))
	}

	L.Push(L.NewFunctionFromProto(p.proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return &Error{Name: p.Name, Err: err}
	}
	var ret lua.LValue = lua.LNil
	if L.GetTop() > 0 {
		ret = L.Get(1)
	}
	L.SetTop(0)

	if main, ok := L.GetGlobal("main").(*lua.LFunction); ok {
		if err := L.CallByParam(lua.P{Fn: main, NRet: 1, Protect: true}, tbl); err != nil {
			return &Error{Name: p.Name, Err: err}
		}
		ret = L.Get(-1)
		L.Pop(1)
	}
	if err := done(L, ret, tbl); err != nil {
		return &Error{Name: p.Name, Err: err}
	}
	return nil
}

func newInterpreter(ctx context.Context) (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	libs := []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
	for _, lib := range libs {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.open), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, err
		}
	}
	for _, name := range removedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetContext(ctx)
	return L, nil
}

func stateTable(L *lua.LState, st *domain.State) *lua.LTable {
	tbl := L.NewTable()
	snap := L.NewTable()
	for k, v := range st.Snapshot {
		snap.RawSetString(k, lua.LString(v))
	}
	hist := L.NewTable()
	for _, m := range st.History {
		msg := L.NewTable()
		msg.RawSetString("role", lua.LString(m.Role))
		msg.RawSetString("content", lua.LString(m.Content))
		hist.Append(msg)
	}
	tbl.RawSetString("snapshot", snap)
	tbl.RawSetString("history", hist)
	tbl.RawSetString("result", lua.LString(st.Result))
	tbl.RawSetString("exception", lua.LBool(st.Exception))
	return tbl
}

func readHistory(hist *lua.LTable) []domain.Message {
	out := make([]domain.Message, 0, hist.Len())
	hist.ForEach(func(_, v lua.LValue) {
		msg, ok := v.(*lua.LTable)
		if !ok {
			return
		}
		out = append(out, domain.Message{
			Role:    lua.LVAsString(msg.RawGetString("role")),
			Content: lua.LVAsString(msg.RawGetString("content")),
		})
	})
	return out
}

func toText(v lua.LValue) (string, error) {
	switch val := v.(type) {
	case lua.LString:
		return string(val), nil
	case lua.LNumber:
		f := float64(val)
		if f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10), nil
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case lua.LBool:
		return strconv.FormatBool(bool(val)), nil
	case *lua.LTable:
		return tableText(val)
	}
	return "", fmt.Errorf("unsupported return type %s", v.Type().String())
}
