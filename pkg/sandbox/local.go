package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/observability"
	"github.com/rhuss/tabula/pkg/table"
)

// Ensure Local implements Executor.
var _ Executor = (*Local)(nil)

// LocalConfig configures a Local executor.
type LocalConfig struct {
	// ExecTimeout bounds a single fragment. Zero means DefaultExecTimeout.
	ExecTimeout time.Duration

	// Preload scripts run once during setup, after the console is
	// installed. A failing script fails setup.
	Preload []string

	// MaxLogLines caps captured console lines per fragment.
	MaxLogLines int

	Logger *slog.Logger
}

const (
	DefaultExecTimeout = 30 * time.Second
	defaultMaxLogLines = 200
	maxLogLineChars    = 2000
	maxCallStack       = 4096
)

// Local runs fragments in an embedded JavaScript runtime owned by a single
// goroutine. Setup starts immediately in NewLocal.
type Local struct {
	cfg    LocalConfig
	logger *slog.Logger

	jobs  chan *job
	ready chan struct{}
	done  chan struct{}

	mu       sync.Mutex
	state    State
	setupErr *SetupError

	closeOnce sync.Once
}

type job struct {
	ctx     context.Context
	code    string
	records string
	columns string
	reply   chan *Result
}

// errTimeout is the interrupt value used when ExecTimeout expires.
var errTimeout = errors.New("timeout")

// NewLocal creates a Local executor and starts its runtime goroutine.
func NewLocal(cfg LocalConfig) *Local {
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = DefaultExecTimeout
	}
	if cfg.MaxLogLines <= 0 {
		cfg.MaxLogLines = defaultMaxLogLines
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	l := &Local{
		cfg:    cfg,
		logger: logger,
		jobs:   make(chan *job),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		state:  StateUninitialized,
	}
	go l.loop()
	return l
}

// NewLocalFactory returns a Factory that creates a Local per call and waits
// for it to become ready.
func NewLocalFactory(cfg LocalConfig) Factory {
	return func(ctx context.Context) (Executor, error) {
		l := NewLocal(cfg)
		if err := l.Ready(ctx); err != nil {
			l.Close()
			return nil, err
		}
		return l, nil
	}
}

// Ready blocks until setup finished. It returns the *SetupError when setup
// failed.
func (l *Local) Ready(ctx context.Context) error {
	select {
	case <-l.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.setupErr != nil {
		return l.setupErr
	}
	return nil
}

// State returns the current lifecycle state.
func (l *Local) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Execute runs one fragment. It waits for setup to finish first.
func (l *Local) Execute(ctx context.Context, code string, dataset *table.Table) (*Result, error) {
	if err := l.Ready(ctx); err != nil {
		return nil, err
	}

	records, columns, err := encodeDataset(dataset)
	if err != nil {
		return nil, fmt.Errorf("encoding dataset: %w", err)
	}

	l.mu.Lock()
	switch l.state {
	case StateClosed:
		l.mu.Unlock()
		return nil, ErrClosed
	case StateExecuting:
		l.mu.Unlock()
		return nil, ErrBusy
	}
	l.state = StateExecuting
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		if l.state == StateExecuting {
			l.state = StateReady
		}
		l.mu.Unlock()
	}()

	j := &job{
		ctx:     ctx,
		code:    code,
		records: records,
		columns: columns,
		reply:   make(chan *Result, 1),
	}

	select {
	case l.jobs <- j:
	case <-l.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var res *Result
	select {
	case res = <-j.reply:
	case <-l.done:
		return nil, ErrClosed
	}

	status := "success"
	switch {
	case res.TimedOut:
		status = "timeout"
	case !res.Success:
		status = "error"
	}
	observability.SandboxExecutionsTotal.WithLabelValues("local", status).Inc()
	observability.SandboxExecutionDuration.WithLabelValues("local").Observe(res.Duration.Seconds())

	// An interrupt caused by the caller is not a fragment failure.
	if !res.Success && !res.TimedOut && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	debug.Log("sandbox", "fragment finished", "success", res.Success, "timed_out", res.TimedOut,
		"duration_ms", res.Duration.Milliseconds(), "logs", len(res.Logs))
	return res, nil
}

// Close stops the runtime goroutine.
func (l *Local) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.state = StateClosed
		l.mu.Unlock()
		close(l.done)
	})
	return nil
}

func encodeDataset(t *table.Table) (records, columns string, err error) {
	if t == nil {
		return "[]", "[]", nil
	}
	rec, err := t.RecordsJSON()
	if err != nil {
		return "", "", err
	}
	cols, err := json.Marshal(t.Columns)
	if err != nil {
		return "", "", err
	}
	return string(rec), string(cols), nil
}

// jsRuntime bundles the VM with the helpers captured at setup, so fragments
// that overwrite globals cannot break later executions.
type jsRuntime struct {
	vm      *goja.Runtime
	compile goja.Callable
	settle  goja.Callable
	parse   goja.Callable
	logs    []LogLine
	max     int
}

func (l *Local) loop() {
	rt, err := l.setup()
	l.mu.Lock()
	if err != nil {
		l.setupErr = &SetupError{Err: err}
		l.state = StateFailed
		l.mu.Unlock()
		close(l.ready)
		l.logger.Error("sandbox setup failed", "error", err)
		return
	}
	if l.state == StateUninitialized {
		l.state = StateReady
	}
	l.mu.Unlock()
	close(l.ready)
	debug.Log("sandbox", "runtime ready", "preload", len(l.cfg.Preload))

	for {
		select {
		case j := <-l.jobs:
			j.reply <- l.run(rt, j)
		case <-l.done:
			return
		}
	}
}

func (l *Local) setup() (rt *jsRuntime, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during setup: %v", r)
		}
	}()

	rt = &jsRuntime{vm: goja.New(), max: l.cfg.MaxLogLines}
	vm := rt.vm
	vm.SetMaxCallStackSize(maxCallStack)

	if err := vm.Set("__emit", func(level, text string) {
		if len(rt.logs) >= rt.max {
			return
		}
		rt.logs = append(rt.logs, LogLine{Level: level, Text: table.Truncate(text, maxLogLineChars)})
	}); err != nil {
		return nil, fmt.Errorf("binding console: %w", err)
	}
	if _, err := vm.RunString(prelude); err != nil {
		return nil, fmt.Errorf("running prelude: %w", err)
	}

	if rt.compile, err = callable(vm, compileFn); err != nil {
		return nil, err
	}
	if rt.settle, err = callable(vm, settleFn); err != nil {
		return nil, err
	}
	if rt.parse, err = callable(vm, "JSON.parse"); err != nil {
		return nil, err
	}

	for i, src := range l.cfg.Preload {
		if _, err := vm.RunScript(fmt.Sprintf("preload-%d.js", i), src); err != nil {
			return nil, fmt.Errorf("preload script %d: %w", i, err)
		}
	}
	return rt, nil
}

func callable(vm *goja.Runtime, src string) (goja.Callable, error) {
	v, err := vm.RunString(src)
	if err != nil {
		return nil, fmt.Errorf("compiling helper: %w", err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("helper %q is not a function", src)
	}
	return fn, nil
}

// run executes one job on the runtime goroutine.
func (l *Local) run(rt *jsRuntime, j *job) *Result {
	rt.logs = nil
	rt.vm.ClearInterrupt()

	runCtx, cancel := context.WithTimeout(j.ctx, l.cfg.ExecTimeout)
	defer cancel()

	fired := make(chan struct{})
	stop := context.AfterFunc(runCtx, func() {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && j.ctx.Err() == nil {
			rt.vm.Interrupt(errTimeout)
		} else {
			rt.vm.Interrupt(context.Canceled)
		}
		close(fired)
	})

	start := time.Now()
	value, err := l.invoke(rt, j)
	elapsed := time.Since(start)

	if !stop() {
		<-fired
	}
	rt.vm.ClearInterrupt()

	res := &Result{Logs: rt.logs, Duration: elapsed}
	rt.logs = nil

	if err == nil {
		res.Success = true
		res.Value = json.RawMessage(value)
		return res
	}

	var interrupted *goja.InterruptedError
	var exception *goja.Exception
	var syntax *goja.CompilerSyntaxError
	switch {
	case errors.As(err, &interrupted):
		if interrupted.Value() == errTimeout {
			res.TimedOut = true
			res.Error = fmt.Sprintf("TimeoutError: execution exceeded %s", l.cfg.ExecTimeout)
		} else {
			res.Error = "Interrupted: execution cancelled"
		}
	case errors.As(err, &exception):
		res.Error = exception.Value().String()
		res.Stack = exception.String()
	case errors.As(err, &syntax):
		res.Error = "SyntaxError: " + syntax.Error()
	default:
		res.Error = err.Error()
	}
	return res
}

func (l *Local) invoke(rt *jsRuntime, j *job) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("InternalError: %v", r)
		}
	}()

	vm := rt.vm
	fn, err := rt.compile(goja.Undefined(), vm.ToValue(j.code))
	if err != nil {
		return "", err
	}
	call, ok := goja.AssertFunction(fn)
	if !ok {
		return "", errors.New("fragment did not compile to a function")
	}
	df, err := rt.parse(goja.Undefined(), vm.ToValue(j.records))
	if err != nil {
		return "", fmt.Errorf("binding df: %w", err)
	}
	columns, err := rt.parse(goja.Undefined(), vm.ToValue(j.columns))
	if err != nil {
		return "", fmt.Errorf("binding columns: %w", err)
	}
	ret, err := call(goja.Undefined(), df, columns)
	if err != nil {
		return "", err
	}
	settled, err := rt.settle(goja.Undefined(), ret)
	if err != nil {
		return "", err
	}
	return settled.String(), nil
}
