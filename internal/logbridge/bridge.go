// Package logbridge copies a process's output streams into slog, one record per line.
package logbridge

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"git.home.luguber.info/inful/stepd-host/internal/logfields"
)

// maxLineSize bounds a single log record; longer lines are split.
const maxLineSize = 64 * 1024

// Bridge drains one stream into a logger.
type Bridge struct {
	Logger *slog.Logger
	Source string
	Level  slog.Level
}

// New returns a Bridge logging at info with the given source label.
func New(logger *slog.Logger, source string) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{Logger: logger, Source: source, Level: slog.LevelInfo}
}

// WithLevel returns a copy of b that logs at level.
func (b *Bridge) WithLevel(level slog.Level) *Bridge {
	c := *b
	c.Level = level
	return &c
}

// Drain reads r until EOF or a read error and logs every line. It returns the number of
// lines logged. Panics raised by the log handler are recovered; the stream is still
// consumed so the writer never blocks on a full pipe.
func (b *Bridge) Drain(r io.Reader) (lines int, err error) {
	br := bufio.NewReaderSize(r, maxLineSize)
	for {
		line, readErr := readLine(br)
		if line != "" || readErr == nil {
			b.emit(line)
			lines++
		}
		if readErr != nil {
			if readErr == io.EOF {
				return lines, nil
			}
			return lines, readErr
		}
	}
}

// Run drains r on its own goroutine. When the stream ends it calls onExit (if non-nil)
// and closes the returned channel.
func (b *Bridge) Run(r io.Reader, onExit func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if onExit != nil {
			defer onExit()
		}
		if _, err := b.Drain(r); err != nil && !isClosedPipe(err) {
			b.safeLog(slog.LevelDebug, "stream read ended", logfields.Error(err))
		}
	}()
	return done
}

func (b *Bridge) emit(line string) {
	b.safeLog(b.Level, line)
}

func (b *Bridge) safeLog(level slog.Level, msg string, attrs ...slog.Attr) {
	defer func() {
		_ = recover()
	}()
	attrs = append(attrs, logfields.Source(b.Source))
	b.Logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// readLine returns the next line without its terminator. Lines longer than the
// buffer are returned in buffer-sized pieces.
func readLine(br *bufio.Reader) (string, error) {
	chunk, isPrefix, err := br.ReadLine()
	if err != nil {
		return "", err
	}
	line := string(chunk)
	if isPrefix {
		return line, nil
	}
	return strings.TrimRight(line, "\r"), nil
}

func isClosedPipe(err error) bool {
	return errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
