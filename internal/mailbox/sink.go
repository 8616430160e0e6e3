package mailbox

import "log"

// Sink receives notes about non-fatal decode issues: body parts that
// failed to decode, charset conversions that fell back, token patterns
// that did not capture. Every component that degrades gracefully reports
// through the sink it was constructed with instead of a global flag.
type Sink interface {
	Notef(format string, args ...any)
}

type nopSink struct{}

func (nopSink) Notef(string, ...any) {}

// NopSink discards all notes. It is the default when no sink is supplied.
func NopSink() Sink { return nopSink{} }

type logSink struct {
	logger *log.Logger
}

func (s logSink) Notef(format string, args ...any) {
	s.logger.Printf(format, args...)
}

// LogSink forwards notes to a standard logger. A nil logger falls back to
// log.Default.
func LogSink(logger *log.Logger) Sink {
	if logger == nil {
		logger = log.Default()
	}
	return logSink{logger: logger}
}
