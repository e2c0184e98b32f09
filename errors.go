/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

func setupLogging(cfg *Config) {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: logDate,
	})

	logrus.SetLevel(logrus.WarnLevel)
	if cfg.verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	logrus.Infof(format, args...)
}

// roomLogger is handed to the room coordinator; quiet unless --verbose.
func roomLogger(cfg *Config) logrus.FieldLogger {
	if !cfg.verbose {
		l := logrus.New()
		l.SetOutput(io.Discard)
		return l
	}

	return logrus.WithField("component", "rooms")
}

// drainErrors logs handler write failures until errs is closed.
func drainErrors(errs <-chan error) {
	for err := range errs {
		logrus.WithError(err).Warn("SERVE: write failed")
	}
}

// newPage wraps body, which must already be escaped, in a minimal document.
func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1">`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`body{font-family:sans-serif;max-width:40rem;margin:2rem auto;padding:0 1rem;}a{color:inherit;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", html.EscapeString(title)))
	htmlBody.WriteString(fmt.Sprintf("<body>%s</body></html>", body))

	return htmlBody.String()
}
