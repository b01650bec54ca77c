// termloop-demo exercises the runtime kernel end to end: stacked
// movable windows, a repeating clock timer, background jobs with
// cooperative cancellation, and the insert-before hook.
//
// Keys: n new window, j spawn job, c cancel job, a async task,
// i insert a line above the UI, q or Ctrl-C quit. Click a window to
// raise it; Esc closes the top window; arrows move it.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lixenwraith/termloop/control"
	"github.com/lixenwraith/termloop/core"
	"github.com/lixenwraith/termloop/engine"
	"github.com/lixenwraith/termloop/winstack"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := openLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "terminal: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "terminal init: %v\n", err)
		os.Exit(1)
	}
	defer screen.Fini()

	if cfg.mouse {
		screen.EnableMouse()
	}

	rt := engine.NewRuntime[demoEvent](screen, translate, engine.Options{
		PollInterval: cfg.tick,
		PoolSize:     cfg.poolSize,
		Logger:       logger,
	})

	app := newDemoApp()
	if err := rt.Run(app); err != nil {
		screen.Fini()
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(1)
	}
}

// config holds the demo's tunables, loaded through viper with
// TERMLOOP_-prefixed environment overrides.
type config struct {
	tick     time.Duration
	poolSize int
	mouse    bool
	logFile  string
	logLevel string
}

func loadConfig() (config, error) {
	v := viper.New()
	v.SetConfigName("termloop-demo")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/termloop")

	v.SetDefault("tick_ms", 10)
	v.SetDefault("pool_size", 4)
	v.SetDefault("mouse", true)
	v.SetDefault("log_file", "termloop-demo.log")
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("TERMLOOP")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file means defaults; anything else is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return config{}, err
		}
	}

	return config{
		tick:     time.Duration(v.GetInt("tick_ms")) * time.Millisecond,
		poolSize: v.GetInt("pool_size"),
		mouse:    v.GetBool("mouse"),
		logFile:  v.GetString("log_file"),
		logLevel: v.GetString("log_level"),
	}, nil
}

// openLogger writes structured logs to a file: the kernel owns the
// terminal, so stdio is off limits while the UI runs.
func openLogger(cfg config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.logLevel)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.logLevel, err)
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{cfg.logFile}
	zc.ErrorOutputPaths = []string{cfg.logFile}
	return zc.Build()
}

// demoEvent is the application event type: either a raw terminal event
// for window dispatch or a note synthesized by timers and jobs.
type demoEvent struct {
	term tcell.Event
	note string
}

func translate(ev tcell.Event) control.Control[demoEvent] {
	if _, ok := ev.(*tcell.EventResize); ok {
		return control.Changed[demoEvent]()
	}
	return control.Event(demoEvent{term: ev})
}

type demoCtx = *engine.Context[demoEvent]

type demoApp struct {
	stack    *winstack.Stack[demoEvent, demoCtx]
	windows  int
	status   string
	inserted int

	jobCancel   *engine.Cancel
	jobLiveness *engine.Liveness
}

func newDemoApp() *demoApp {
	return &demoApp{
		stack:  winstack.New[demoEvent, demoCtx](),
		status: "n:new window  j:job  c:cancel  a:async  i:insert  q:quit",
	}
}

func (a *demoApp) Init(ctx demoCtx) error {
	tick := demoEvent{note: "clock"}
	ctx.AddTimer(engine.TimerDef[demoEvent]{
		Interval: time.Second,
		Repeat:   engine.RepeatForever,
		Payload:  &tick,
	})
	a.showWindow(ctx)
	return nil
}

func (a *demoApp) Event(ev demoEvent, ctx demoCtx) (control.Control[demoEvent], error) {
	if ev.note != "" {
		return a.handleNote(ev.note, ctx)
	}
	if ev.term == nil {
		return control.Continue[demoEvent](), nil
	}

	// Windows look first; whatever they leave falls through to the
	// application keys.
	res, err := a.stack.HandleEvent(ev.term, ctx)
	if err != nil {
		return control.Continue[demoEvent](), err
	}
	if payload, ok := res.Payload(); ok {
		if res.IsClose() {
			a.status = "window closed: " + payload.note
			return control.Changed[demoEvent](), nil
		}
		ctx.QueueEvent(payload)
		return control.Changed[demoEvent](), nil
	}
	if res.IsConsumed() {
		return liftWindow(res), nil
	}

	if key, ok := ev.term.(*tcell.EventKey); ok {
		return a.handleKey(key, ctx)
	}
	return control.Continue[demoEvent](), nil
}

// liftWindow maps a consumed window outcome onto the runtime lattice.
func liftWindow(res winstack.Control[demoEvent]) control.Control[demoEvent] {
	if res.IsChanged() {
		return control.Changed[demoEvent]()
	}
	return control.Unchanged[demoEvent]()
}

func (a *demoApp) handleKey(key *tcell.EventKey, ctx demoCtx) (control.Control[demoEvent], error) {
	if key.Key() == tcell.KeyCtrlC {
		return control.Quit[demoEvent](), nil
	}
	if key.Key() != tcell.KeyRune {
		return control.Continue[demoEvent](), nil
	}

	switch key.Rune() {
	case 'q':
		return control.Quit[demoEvent](), nil
	case 'n':
		a.showWindow(ctx)
		return control.Changed[demoEvent](), nil
	case 'j':
		a.spawnJob(ctx)
		return control.Changed[demoEvent](), nil
	case 'c':
		if a.jobCancel != nil {
			a.jobCancel.Cancel()
			a.status = "cancellation requested"
			return control.Changed[demoEvent](), nil
		}
		a.status = "no job to cancel"
		return control.Changed[demoEvent](), nil
	case 'a':
		a.spawnAsync(ctx)
		return control.Changed[demoEvent](), nil
	case 'i':
		a.inserted++
		n := a.inserted
		ctx.InsertBefore(func() {
			fmt.Printf("termloop-demo scrollback line %d\n", n)
		})
		return control.Changed[demoEvent](), nil
	}
	return control.Continue[demoEvent](), nil
}

func (a *demoApp) handleNote(note string, ctx demoCtx) (control.Control[demoEvent], error) {
	switch note {
	case "clock":
		// The repaint redraws every window's clock line.
		return control.Changed[demoEvent](), nil
	default:
		a.status = note
		return control.Changed[demoEvent](), nil
	}
}

func (a *demoApp) spawnJob(ctx demoCtx) {
	if a.jobLiveness != nil && !a.jobLiveness.Finished() {
		a.status = "job already running"
		return
	}
	a.status = "job running (c cancels)"
	a.jobCancel, a.jobLiveness = ctx.SpawnExt(func(cancel *engine.Cancel, send *engine.Sender[demoEvent]) (control.Control[demoEvent], error) {
		for i := 1; i <= 10; i++ {
			if cancel.Canceled() {
				return control.Event(demoEvent{note: fmt.Sprintf("job canceled at step %d", i)}), nil
			}
			time.Sleep(300 * time.Millisecond)
			send.SendEvent(demoEvent{note: fmt.Sprintf("job step %d/10", i)})
		}
		return control.Event(demoEvent{note: "job finished"}), nil
	})
}

func (a *demoApp) spawnAsync(ctx demoCtx) {
	a.status = "async task running"
	ctx.SpawnAsync(func(c context.Context) (control.Control[demoEvent], error) {
		select {
		case <-c.Done():
			return control.Continue[demoEvent](), c.Err()
		case <-time.After(2 * time.Second):
			return control.Event(demoEvent{note: "async task done"}), nil
		}
	})
}

func (a *demoApp) Error(err error, ctx demoCtx) control.Control[demoEvent] {
	ctx.Logger().Warn("application error", zap.Error(err))
	a.status = "error: " + err.Error()
	return control.Changed[demoEvent]()
}

func (a *demoApp) Render(ctx demoCtx) error {
	screen := ctx.Screen()
	screen.Clear()

	w, h := screen.Size()
	drawText(screen, 0, h-1, w, a.status, tcell.StyleDefault.Reverse(true))
	drawText(screen, 0, 0, w, time.Now().Format("15:04:05"), tcell.StyleDefault)

	return a.stack.RenderAll(ctx)
}

// showWindow stacks a new movable window, cascading its position.
func (a *demoApp) showWindow(ctx demoCtx) {
	a.windows++
	win := &demoWin{
		title: fmt.Sprintf("window %d", a.windows),
		area:  core.Rect{X: 4 + 3*a.windows, Y: 2 + a.windows, Width: 30, Height: 7},
	}
	a.stack.Show(win, renderWin, handleWin, ctx)
}

// demoWin is a movable window: arrows move it, Esc closes it when top.
type demoWin struct {
	title string
	area  core.Rect
	top   bool
}

func (w *demoWin) SetTop(top bool, ctx demoCtx) { w.top = top }
func (w *demoWin) Area() core.Rect              { return w.area }

func handleWin(state winstack.Window[demoCtx], ev tcell.Event, ctx demoCtx) (winstack.Control[demoEvent], error) {
	w := state.(*demoWin)
	key, ok := ev.(*tcell.EventKey)
	if !ok || !w.top {
		return winstack.Continue[demoEvent](), nil
	}

	switch key.Key() {
	case tcell.KeyEscape:
		return winstack.Close(demoEvent{note: w.title}), nil
	case tcell.KeyUp:
		w.area = w.area.Move(0, -1)
	case tcell.KeyDown:
		w.area = w.area.Move(0, 1)
	case tcell.KeyLeft:
		w.area = w.area.Move(-2, 0)
	case tcell.KeyRight:
		w.area = w.area.Move(2, 0)
	default:
		return winstack.Continue[demoEvent](), nil
	}
	return winstack.Changed[demoEvent](), nil
}

func renderWin(state winstack.Window[demoCtx], ctx demoCtx) error {
	w := state.(*demoWin)
	style := tcell.StyleDefault
	if w.top {
		style = style.Foreground(tcell.ColorYellow)
	}
	drawBox(ctx.Screen(), w.area, style)
	drawText(ctx.Screen(), w.area.X+2, w.area.Y, w.area.Width-4, " "+w.title+" ", style)
	drawText(ctx.Screen(), w.area.X+2, w.area.Y+2, w.area.Width-4, time.Now().Format("15:04:05"), style)
	if w.top {
		drawText(ctx.Screen(), w.area.X+2, w.area.Y+4, w.area.Width-4, "arrows move, esc closes", style)
	}
	return nil
}

func drawBox(screen tcell.Screen, r core.Rect, style tcell.Style) {
	for y := r.Y; y < r.Y+r.Height; y++ {
		for x := r.X; x < r.X+r.Width; x++ {
			ch := ' '
			switch {
			case y == r.Y && x == r.X:
				ch = '┌'
			case y == r.Y && x == r.X+r.Width-1:
				ch = '┐'
			case y == r.Y+r.Height-1 && x == r.X:
				ch = '└'
			case y == r.Y+r.Height-1 && x == r.X+r.Width-1:
				ch = '┘'
			case y == r.Y || y == r.Y+r.Height-1:
				ch = '─'
			case x == r.X || x == r.X+r.Width-1:
				ch = '│'
			}
			screen.SetContent(x, y, ch, nil, style)
		}
	}
}

func drawText(screen tcell.Screen, x, y, maxWidth int, text string, style tcell.Style) {
	col := x
	for _, ch := range text {
		if col >= x+maxWidth {
			break
		}
		screen.SetContent(col, y, ch, nil, style)
		col++
	}
}
