package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nikmy/graphtx/pkg/environment"
	"github.com/nikmy/graphtx/pkg/errors"
)

type Logger interface {
	With(label string) Logger
	WithFields(kv ...any) Logger

	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Panicf(format string, args ...any)

	Debug(err error)
	Info(err error)
	Warn(err error)
	Error(err error)
	Panic(err error)
}

func New(env environment.Env) (Logger, error) {
	var logger *zap.Logger
	var err error

	switch env {
	case environment.Production:
		logger, err = zap.NewProduction()
	default:
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		return nil, errors.WrapFail(err, "init logger")
	}

	return FromZap(logger), nil
}

// FromZap wraps z. Every call site goes through log and write, hence the
// caller skip.
func FromZap(z *zap.Logger) Logger {
	return &wrapper{base: z.WithOptions(zap.AddCallerSkip(3))}
}

type wrapper struct {
	base *zap.Logger
}

func (w *wrapper) With(label string) Logger {
	return &wrapper{base: w.base.Named(label)}
}

func (w *wrapper) WithFields(kv ...any) Logger {
	return &wrapper{base: w.base.Sugar().With(kv...).Desugar()}
}

// Error-taking methods drop nil errors so callers can log the result of
// WrapFail directly. Panic ignores nil too.
func (w *wrapper) Debug(err error) { w.log(zapcore.DebugLevel, err) }
func (w *wrapper) Info(err error)  { w.log(zapcore.InfoLevel, err) }
func (w *wrapper) Warn(err error)  { w.log(zapcore.WarnLevel, err) }
func (w *wrapper) Error(err error) { w.log(zapcore.ErrorLevel, err) }
func (w *wrapper) Panic(err error) { w.log(zapcore.PanicLevel, err) }

func (w *wrapper) Debugf(format string, args ...any) { w.logf(zapcore.DebugLevel, format, args...) }
func (w *wrapper) Infof(format string, args ...any)  { w.logf(zapcore.InfoLevel, format, args...) }
func (w *wrapper) Warnf(format string, args ...any)  { w.logf(zapcore.WarnLevel, format, args...) }
func (w *wrapper) Errorf(format string, args ...any) { w.logf(zapcore.ErrorLevel, format, args...) }
func (w *wrapper) Panicf(format string, args ...any) { w.logf(zapcore.PanicLevel, format, args...) }

func (w *wrapper) log(lvl zapcore.Level, err error) {
	if err == nil {
		return
	}
	w.write(lvl, err.Error())
}

func (w *wrapper) logf(lvl zapcore.Level, format string, args ...any) {
	if lvl < zapcore.PanicLevel && !w.base.Core().Enabled(lvl) {
		return
	}
	w.write(lvl, fmt.Sprintf(format, args...))
}

// write flushes on error and above; a panic entry panics after it is written.
func (w *wrapper) write(lvl zapcore.Level, msg string) {
	ce := w.base.Check(lvl, msg)
	if ce == nil {
		return
	}

	if lvl >= zapcore.PanicLevel {
		_ = w.base.Sync()
	}
	ce.Write()
	if lvl >= zapcore.ErrorLevel {
		_ = w.base.Sync()
	}
}
