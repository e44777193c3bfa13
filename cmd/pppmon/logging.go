package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pppmon/pppmon/config"
)

// newLogger creates a JSON logger on stderr. When a log file is configured,
// either in the config or with --log-file, records are also written there
// through a size-rotated writer. The returned closer releases the file.
func newLogger(cmd *cobra.Command, lc config.LogConfig, level slog.Level) (*slog.Logger, io.Closer) {
	if flag, _ := cmd.Flags().GetString("log-file"); flag != "" {
		lc.File = flag
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = slog.LevelDebug
	}

	var (
		w      io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if lc.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   lc.File,
			MaxSize:    lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
			MaxAge:     lc.MaxAgeDays,
			Compress:   true,
		}
		w = io.MultiWriter(os.Stderr, rotator)
		closer = rotator
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
