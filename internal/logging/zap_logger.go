package logging

import (
	"os"
	"time"

	zaplogfmt "github.com/jsternberg/zap-logfmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ Logger = &zapLogger{}

// Config configures the zap-backed logger.
type Config struct {
	Format string `env:"LOG_FORMAT" env-default:"logfmt"` // logfmt, console or json
	Level  Level  `env:"LOG_LEVEL" env-default:"info"`
}

type zapLogger struct {
	lg *zap.SugaredLogger
}

// New builds the process-wide Logger from Config.
func New(cfg Config) Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = func(ts time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(ts.UTC().Format(time.RFC3339))
	}

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encCfg)
	case "console":
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		encoder = zaplogfmt.NewEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), toZapLevel(cfg.Level))
	lg := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()

	return &zapLogger{lg: lg}
}

func (l *zapLogger) Debug(msg string, kv ...any) { l.lg.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...any)  { l.lg.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...any)  { l.lg.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...any) { l.lg.Errorw(msg, kv...) }
func (l *zapLogger) Fatal(msg string, kv ...any) { l.lg.Fatalw(msg, kv...) }

// Trace has no dedicated zap level; it logs at debug to keep the signature
// symmetric with the rest of the interface.
func (l *zapLogger) Trace(msg string, kv ...any) { l.lg.Debugw(msg, kv...) }

func (l *zapLogger) With(key string, value any) Logger {
	return &zapLogger{lg: l.lg.With(key, value)}
}

func (l *zapLogger) NewSystem(name string) Logger {
	return &zapLogger{lg: l.lg.With("system", name)}
}

func toZapLevel(l Level) zapcore.Level {
	switch l {
	case LevelDebug, LevelTrace:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
