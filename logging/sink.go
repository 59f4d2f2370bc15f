package logging

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sink is the process-wide, best-effort consumer of LogRecords. It
// must never propagate an error back to the call site: a FATAL record
// stays fatal only because the caller follows it with its own exit,
// not because the sink raises anything.
type Sink interface {
	Write(r Record)
}

var (
	level      atomic.Int32
	threadTags sync.Map // goroutine id (uint64) -> tag (string)
	sink       atomic.Pointer[Sink]
)

func init() {
	level.Store(int32(LevelInfo))
	var s Sink = NewZapSink(zap.NewProductionConfig())
	sink.Store(&s)
}

// CurrentLevel returns the process-wide severity threshold.
func CurrentLevel() Level { return Level(level.Load()) }

// SetLevel sets the process-wide severity threshold.
func SetLevel(lvl Level) { level.Store(int32(lvl)) }

// ThreadTag returns the short identifier stamped on records emitted
// from the calling goroutine, or "" if none was set.
func ThreadTag() string {
	if v, ok := threadTags.Load(goroutineID()); ok {
		return v.(string)
	}
	return ""
}

// SetThreadTag stamps a short identifier on every record subsequently
// emitted from the calling goroutine.
func SetThreadTag(tag string) {
	threadTags.Store(goroutineID(), tag)
}

// SetSink replaces the process-wide sink. Tests use this to capture
// records without going through zap.
func SetSink(s Sink) {
	sink.Store(&s)
}

// Emit builds a record and writes it to the sink, provided lvl is at
// or above the current threshold. file/line identify the call site;
// values are formatted best-effort (see formatOne).
func Emit(lvl Level, file string, line int, values ...any) {
	cur := CurrentLevel()
	if !enabled(lvl, cur) {
		return
	}
	r := newRecord(lvl, ThreadTag(), file, line, values)
	if s := sink.Load(); s != nil {
		(*s).Write(r)
	}
}

// ZapSink is the default Sink, backed by a zap.Logger. It owns no
// call-site formatting logic itself — Record.Message has already been
// assembled best-effort by the time Write is called.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink builds a ZapSink from a zap production or development
// config. Callers wanting the colorized console encoder should use
// NewConsoleSink instead.
func NewZapSink(cfg zap.Config) *ZapSink {
	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	return &ZapSink{logger: l}
}

func (z *ZapSink) Write(r Record) {
	fields := []zap.Field{
		zap.String("tag", r.Tag),
		zap.String("file", r.File),
		zap.Int("line", r.Line),
	}
	// Writes through the core directly rather than Logger.Check/Fatal:
	// a FATAL record must not itself terminate the process, only the
	// caller's own follow-up action does.
	entry := zapcore.Entry{
		Level:   toZapLevel(r.Level),
		Time:    time.Now(),
		Message: r.Message,
	}
	_ = z.logger.Core().Write(entry, fields)
}

func toZapLevel(l Level) zapcore.Level {
	switch l {
	case LevelFatal:
		return zapcore.FatalLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelWarning:
		return zapcore.WarnLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelDebug:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}
