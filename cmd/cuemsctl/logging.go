package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"

	"github.com/zenibako/cuems-golang/config"
)

func setupLogger(w io.Writer, level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log.SetOutput(w)
	log.SetLevel(lvl)
	log.SetReportTimestamp(true)
	log.SetTimeFormat(time.TimeOnly)
	if useJSONLogs(w, format) {
		log.SetFormatter(log.JSONFormatter)
	} else {
		log.SetFormatter(log.TextFormatter)
	}
	return nil
}

func useJSONLogs(w io.Writer, format string) bool {
	switch format {
	case config.FormatJSON:
		return true
	case config.FormatText:
		return false
	}
	return !isTerminal(w)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
