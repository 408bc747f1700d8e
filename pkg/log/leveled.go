package log

import "github.com/rs/zerolog"

// Leveled adapts a zerolog.Logger to the key/value leveled logger interface
// expected by hashicorp/go-retryablehttp.
type Leveled struct {
	logger zerolog.Logger
}

// NewLeveled wraps logger
func NewLeveled(logger zerolog.Logger) *Leveled {
	return &Leveled{logger: logger}
}

func (l *Leveled) Error(msg string, keysAndValues ...interface{}) {
	l.emit(l.logger.Error(), msg, keysAndValues)
}

func (l *Leveled) Info(msg string, keysAndValues ...interface{}) {
	// retryablehttp is chatty at info level; demote to debug
	l.emit(l.logger.Debug(), msg, keysAndValues)
}

func (l *Leveled) Debug(msg string, keysAndValues ...interface{}) {
	l.emit(l.logger.Debug(), msg, keysAndValues)
}

func (l *Leveled) Warn(msg string, keysAndValues ...interface{}) {
	l.emit(l.logger.Warn(), msg, keysAndValues)
}

func (l *Leveled) emit(ev *zerolog.Event, msg string, kv []interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
}
