// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package config

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// TimestampFormat is used by both text and JSON log output.
const TimestampFormat = "2006-01-02 15:04:05"

// SetupLogger builds a logger from cfg. An unknown level means info; a log
// file that cannot be opened leaves output on stderr with a warning.
func SetupLogger(cfg LogConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: TimestampFormat,
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: TimestampFormat,
		})
	}

	var out io.Writer = os.Stderr
	switch cfg.Output {
	case "stdout":
		out = os.Stdout
	case "file":
		if cfg.FilePath == "" {
			break
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			log.Warnf("open log file: %v, logging to stderr", err)
			break
		}
		out = f
	}
	log.SetOutput(out)
	return log
}
