// Package lua lets a pattern script replace the rainbow's color wheel.
//
// A script defines a global function wheel(pos) that receives a wheel
// position in 0..255 and returns r, g, b. The built-in wheel is available to
// scripts as default_wheel(pos).
package lua

import (
	"image/color"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"discoball-controller/internal/animation"
)

const errorLogEvery = 5 * time.Second

// Wheel is a color wheel backed by a Lua function. It is not safe for
// concurrent use; the control loop is its only caller.
type Wheel struct {
	L      *lua.LState
	fn     *lua.LFunction
	log    zerolog.Logger
	errLog *animation.RateLimiter
	now    func() time.Time
}

// LoadWheel runs the named script from dir and binds its wheel function.
func LoadWheel(dir, name string, logger zerolog.Logger) (*Wheel, error) {
	path, err := PatternPath(dir, name)
	if err != nil {
		return nil, errors.Wrapf(err, "pattern %q", name)
	}
	return newWheel(logger, func(L *lua.LState) error { return L.DoFile(path) })
}

// CompileWheel binds the wheel function defined by code.
func CompileWheel(code string, logger zerolog.Logger) (*Wheel, error) {
	return newWheel(logger, func(L *lua.LState) error { return L.DoString(code) })
}

func newWheel(logger zerolog.Logger, load func(*lua.LState) error) (*Wheel, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: false})
	w := &Wheel{L: L, log: logger, errLog: animation.NewRateLimiter(errorLogEvery), now: time.Now}
	w.registerGoFunctions()

	if err := load(L); err != nil {
		L.Close()
		return nil, errors.Wrap(err, "load pattern")
	}
	fn, ok := L.GetGlobal("wheel").(*lua.LFunction)
	if !ok {
		L.Close()
		return nil, errors.New("pattern does not define wheel(pos)")
	}
	w.fn = fn
	return w, nil
}

func (w *Wheel) registerGoFunctions() {
	w.L.SetGlobal("print", w.L.NewFunction(w.luaPrint))
	w.L.SetGlobal("default_wheel", w.L.NewFunction(luaDefaultWheel))
}

func (w *Wheel) luaPrint(L *lua.LState) int {
	w.log.Info().Str("script", "wheel").Msg(L.ToString(1))
	return 0
}

func luaDefaultWheel(L *lua.LState) int {
	c := animation.Wheel(uint8(L.CheckInt(1)))
	L.Push(lua.LNumber(c.R))
	L.Push(lua.LNumber(c.G))
	L.Push(lua.LNumber(c.B))
	return 3
}

// Color evaluates the script at pos. When the script fails the built-in wheel
// is used for that pixel.
func (w *Wheel) Color(pos uint8) color.RGBA {
	if err := w.L.CallByParam(lua.P{Fn: w.fn, NRet: 3, Protect: true}, lua.LNumber(pos)); err != nil {
		if w.errLog.Allow(w.now()) {
			w.log.Warn().Err(err).Msg("pattern wheel failed, using built-in wheel")
		}
		return animation.Wheel(pos)
	}
	r, g, b := w.L.Get(-3), w.L.Get(-2), w.L.Get(-1)
	w.L.Pop(3)
	return color.RGBA{R: channel(r), G: channel(g), B: channel(b), A: 0xff}
}

// Func returns Color as an animation.WheelFunc.
func (w *Wheel) Func() animation.WheelFunc { return w.Color }

// Close releases the Lua state.
func (w *Wheel) Close() { w.L.Close() }

func channel(v lua.LValue) uint8 {
	n := int(lua.LVAsNumber(v))
	switch {
	case n < 0:
		return 0
	case n > 255:
		return 255
	}
	return uint8(n)
}
