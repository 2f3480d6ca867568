package utils

import (
	"log"
	"os"
)

// Logger writes operational log lines to stdout/stderr. Error output is
// separated so container runtimes can route it independently.
type Logger struct {
	out *log.Logger
	err *log.Logger
}

func NewLogger() *Logger {
	return &Logger{
		out: log.New(os.Stdout, "", log.LstdFlags|log.LUTC),
		err: log.New(os.Stderr, "", log.LstdFlags|log.LUTC),
	}
}

func (l *Logger) Printf(format string, args ...any) {
	if l == nil {
		return
	}
	l.out.Printf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil {
		return
	}
	l.err.Printf("ERROR "+format, args...)
}
