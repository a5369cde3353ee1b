package cli

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logFile *lumberjack.Logger

// initLogger points the global zerolog logger at stderr, plus an optional
// rotating JSON log file.
func initLogger(level, format, file string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return errors.Errorf("invalid --log-level %q (want debug, info, warn or error)", level)
	}

	var w io.Writer
	switch format {
	case "text", "":
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	case "json":
		w = os.Stderr
	default:
		return errors.Errorf("invalid --log-format %q (want text or json)", format)
	}

	closeLogger()
	if file != "" {
		logFile = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		w = io.MultiWriter(w, logFile)
	}

	log.Logger = log.Output(w)
	zerolog.SetGlobalLevel(lvl)
	return nil
}

func closeLogger() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}
