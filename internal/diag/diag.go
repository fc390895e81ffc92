// Package diag is the diagnostic logger collaborator from spec.md §1/§7
// made concrete: a pluggable Sink accepting leveled, indented records.
// The default Sink wraps the standard log package with the teacher's
// "[COMPONENT] message" bracket-tag convention.
package diag

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// Level is the severity of a diagnostic record (spec.md §7).
type Level int

const (
	Message Level = iota
	Important
	Error
)

func (l Level) String() string {
	switch l {
	case Important:
		return "IMPORTANT"
	case Error:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Sink is the pluggable destination for diagnostic records. Callers may
// supply their own at engine.New; the default routes through the
// standard log package.
type Sink interface {
	Log(level Level, component string, indent int, format string, args ...interface{})
	Fatal(component string, indent int, stackTrace string, format string, args ...interface{})
}

// StdSink is the default Sink: "[component] message", gated behind Debug
// for Message-level lines (matching the teacher's debug-gated [AUDIO]
// traces) but always emitting Important/Error regardless of Debug
// (spec.md §7: "every command's failure is logged... at error severity").
type StdSink struct {
	mu         sync.Mutex
	logger     *log.Logger
	debug      bool
	indentUnit int
}

// NewStdSink returns a StdSink writing to os.Stderr. indentUnit is the
// number of spaces rendered per indent level (default 2 when <= 0).
func NewStdSink(debug bool, indentUnit int) *StdSink {
	if indentUnit <= 0 {
		indentUnit = 2
	}
	return &StdSink{
		logger:     log.New(os.Stderr, "", log.LstdFlags),
		debug:      debug,
		indentUnit: indentUnit,
	}
}

func (s *StdSink) pad(indent int) string {
	if indent <= 0 {
		return ""
	}
	return strings.Repeat(" ", indent*s.indentUnit)
}

// Log emits a leveled record. Message-level lines are dropped unless
// debug is set; Important and Error always print.
func (s *StdSink) Log(level Level, component string, indent int, format string, args ...interface{}) {
	if level == Message && !s.debug {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	s.logger.Printf("%s[%s] %s: %s", s.pad(indent), component, level, msg)
}

// Fatal emits an Error-level record carrying a stack trace, mirroring
// spec.md §7's error_message/stack_trace record shape. It does not
// terminate the process; callers decide what "fatal" means to them.
func (s *StdSink) Fatal(component string, indent int, stackTrace string, format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	s.logger.Printf("%s[%s] FATAL: %s\n%s", s.pad(indent), component, msg, stackTrace)
}

var _ Sink = (*StdSink)(nil)

// Nop is a Sink that discards every record, useful for tests that don't
// want log noise.
type Nop struct{}

func (Nop) Log(Level, string, int, string, ...interface{})          {}
func (Nop) Fatal(string, int, string, string, ...interface{})       {}

var _ Sink = Nop{}
