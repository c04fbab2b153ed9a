package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Output values accepted by Config.Output / SetDefaults.
const (
	CONSOLE = "console"
	JOURNAL = "systemd-journald"
)

// Logger is the structured logger passed to every part of this module that emits
// events: the execution pipeline's telemetry+log step, the reconnection loop's
// warn-level retry messages, and the schema reconciler's DDL log lines.
type Logger struct {
	*zap.SugaredLogger

	name string
}

// Name returns the name this Logger was created for (matches the Factory.For
// argument), e.g. "database" or "schema".
func (l *Logger) Name() string {
	return l.name
}

// Factory builds named Loggers sharing one Config, giving each name its own zapcore
// core so that per-name level overrides (Config.Options) take effect.
type Factory struct {
	mu      sync.Mutex
	level   zapcore.Level
	output  string
	options Options
	loggers map[string]*Logger
}

// NewFactory builds a Factory from c. c.SetDefaults should be called first if the
// caller wants systemd-journald auto-detection.
func NewFactory(c *Config) *Factory {
	return &Factory{
		level:   c.Level,
		output:  c.Output,
		options: c.Options,
		loggers: make(map[string]*Logger),
	}
}

// For returns the named Logger, creating it on first use. The same name always
// returns the same *Logger.
func (f *Factory) For(name string) *Logger {
	f.mu.Lock()
	defer f.mu.Unlock()

	if l, ok := f.loggers[name]; ok {
		return l
	}

	level := f.level
	if lvl, ok := f.options[name]; ok {
		level = lvl
	}

	var core zapcore.Core
	if f.output == JOURNAL {
		core = NewJournaldCore(name, level)
	} else {
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(os.Stderr), level)
	}

	l := &Logger{SugaredLogger: zap.New(core).Named(name).Sugar(), name: name}
	f.loggers[name] = l
	return l
}

// NewLogger wraps an already-constructed zap.SugaredLogger, for callers (mainly
// tests) that build their own zaptest logger rather than going through a Factory.
func NewLogger(base *zap.SugaredLogger, name string) *Logger {
	return &Logger{SugaredLogger: base, name: name}
}
