package server

import (
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// newConsoleLogger builds the default human-readable logger on stdout.
func newConsoleLogger() zerolog.Logger {
	noColor := !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
	out := zerolog.ConsoleWriter{
		Out:        colorable.NewColorableStdout(),
		NoColor:    noColor,
		TimeFormat: time.TimeOnly,
	}
	return zerolog.New(out).Level(zerolog.InfoLevel).With().Timestamp().Logger()
}

// logRequest logs an HTTP request with color-coded status
func logRequest(logger zerolog.Logger, method, path string, status Status) {
	line := method + " " + path + " " + status.String()
	switch {
	case status == StatusOK:
		line = color.GreenString("%s", line)
	case status == StatusNotFound, status == StatusForbidden, status == StatusMethodNotAllowed:
		line = color.RedString("%s", line)
	case status >= 500:
		line = color.New(color.FgRed, color.Bold).Sprint(line)
	case status >= 400:
		line = color.YellowString("%s", line)
	}
	logger.Info().Int("status", status.Code()).Msg(line)
}

// logServerInfo prints the startup banner with the serving URL.
func logServerInfo(logger zerolog.Logger, addr, strategy string, autoClose bool) {
	url := color.GreenString("http://%s", addr)
	logger.Info().Bool("auto_close", autoClose).Msgf("Serving (%s) on %s", strategy, url)
}
