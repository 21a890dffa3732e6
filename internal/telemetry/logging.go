// Package telemetry wires structured logging and Prometheus metrics used
// across the agent, grounded on the corpus's console+file logger pattern
// and its bot_* metric families.
package telemetry

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewLogger builds a component-scoped logger writing to stdout (console
// format when dev is true, JSON otherwise) fanned out to an append-mode
// log file. Passing an empty logPath disables the file sink.
func NewLogger(component string, dev bool, logPath string) (zerolog.Logger, func(), error) {
	var consoleWriter zerolog.ConsoleWriter
	writers := []zerolog.LevelWriter{}

	var fileHandle *os.File
	openFile := func() (*os.File, error) {
		if logPath == "" {
			return nil, nil
		}
		return os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	}

	var err error
	fileHandle, err = openFile()
	if err != nil {
		return zerolog.Logger{}, func() {}, err
	}

	var out zerolog.LevelWriter
	if dev {
		consoleWriter = zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) { w.Out = os.Stdout })
		if fileHandle != nil {
			out = zerolog.MultiLevelWriter(consoleWriter, fileHandle)
		} else {
			out = zerolog.MultiLevelWriter(consoleWriter)
		}
	} else if fileHandle != nil {
		out = zerolog.MultiLevelWriter(os.Stdout, fileHandle)
	} else {
		out = zerolog.MultiLevelWriter(os.Stdout)
	}
	_ = writers

	logger := zerolog.New(out).With().Timestamp().Str("component", component).Logger()

	// Rotate the log file on SIGHUP: close and reopen, matching the
	// signal-driven lifecycle the collector already uses for shutdown.
	stop := make(chan struct{})
	if fileHandle != nil {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGHUP)
		go func() {
			for {
				select {
				case <-sigCh:
					if f, ferr := openFile(); ferr == nil {
						old := fileHandle
						fileHandle = f
						old.Close()
					}
				case <-stop:
					signal.Stop(sigCh)
					return
				}
			}
		}()
	}

	cleanup := func() {
		close(stop)
		if fileHandle != nil {
			fileHandle.Close()
		}
	}

	return logger, cleanup, nil
}

// SetGlobal installs l as zerolog's package-level logger, used by library
// code that logs via the global log.Logger rather than an injected instance.
func SetGlobal(l zerolog.Logger) {
	log.Logger = l
}
