package core

import (
	"io"
	"log"
	"os"
)

// ConfigLogger is the key for the pipeline's logger
const ConfigLogger = "Core.Logger"

// Logger defines the output interface used by the pipeline and its items.
type Logger interface {
	Info(...interface{})
	Infof(string, ...interface{})
	Warn(...interface{})
	Warnf(string, ...interface{})
	Error(...interface{})
	Errorf(string, ...interface{})
	Critical(...interface{})
	Criticalf(string, ...interface{})
}

// DefaultLogger is the default logger used by a pipeline, and wraps the standard
// log library.
type DefaultLogger struct {
	I *log.Logger
	W *log.Logger
	E *log.Logger
}

// NewLogger returns a configured default logger writing to the standard streams.
func NewLogger() *DefaultLogger {
	return NewLoggerTo(os.Stdout, os.Stderr)
}

// NewLoggerTo returns a default logger writing to the supplied writers.
// Passing an io.MultiWriter duplicates the run output into a log file.
func NewLoggerTo(out, err io.Writer) *DefaultLogger {
	return &DefaultLogger{
		I: log.New(out, "[INFO] ", log.LstdFlags),
		W: log.New(out, "[WARN] ", log.LstdFlags),
		E: log.New(err, "[ERROR] ", log.LstdFlags),
	}
}

// Info writes to the info logger
func (d *DefaultLogger) Info(v ...interface{}) { d.I.Print(v...) }

// Infof writes to the info logger
func (d *DefaultLogger) Infof(f string, v ...interface{}) { d.I.Printf(f, v...) }

// Warn writes to the warning logger
func (d *DefaultLogger) Warn(v ...interface{}) { d.W.Print(v...) }

// Warnf writes to the warning logger
func (d *DefaultLogger) Warnf(f string, v ...interface{}) { d.W.Printf(f, v...) }

// Error writes to the error logger
func (d *DefaultLogger) Error(v ...interface{}) { d.E.Print(v...) }

// Errorf writes to the error logger
func (d *DefaultLogger) Errorf(f string, v ...interface{}) { d.E.Printf(f, v...) }

// Critical writes to the error logger with the CRITICAL prefix
func (d *DefaultLogger) Critical(v ...interface{}) {
	d.E.Print(append([]interface{}{"[CRITICAL] "}, v...)...)
}

// Criticalf writes to the error logger with the CRITICAL prefix
func (d *DefaultLogger) Criticalf(f string, v ...interface{}) { d.E.Printf("[CRITICAL] "+f, v...) }
