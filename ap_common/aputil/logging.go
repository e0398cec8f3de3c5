/*
 * Copyright 2021 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */

package aputil

import (
	"flag"
	"log"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// All loggers handed out by this package share a single level, so that a
// change to the log_level setting takes effect everywhere at once.
var logLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

func zapTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006/01/02 15:04:05"))
}

// NewLogger returns a 'sugared' zap logger.  Each logged line will include a
// timestamp, the log level, and 2 levels of caller name before the message.
// e.g.:
//	2021/03/02 10:23:27     INFO    ap.twtd/api.go:121   ap.twtd: vdev 0 ...
func NewLogger(pname string) *zap.SugaredLogger {
	zapConfig := zap.NewDevelopmentConfig()
	zapConfig.Level = logLevel
	zapConfig.DisableStacktrace = true
	zapConfig.EncoderConfig.EncodeTime = zapTimeEncoder

	logger, err := zapConfig.Build()
	if err != nil {
		log.Panicf("can't zap: %s", err)
	}
	_ = zap.RedirectStdLog(logger)

	return logger.Named(pname).Sugar()
}

// LogSetLevel changes the level of every logger created by NewLogger.  Its
// signature matches a settings callback, so it can be attached directly to a
// log_level setting.
func LogSetLevel(name, val string) error {
	var l zapcore.Level

	if err := l.Set(val); err != nil {
		return err
	}
	logLevel.SetLevel(l)
	return nil
}

// LogLevel returns the current shared log level.
func LogLevel() zapcore.Level {
	return logLevel.Level()
}

type levelFlag struct{}

func (levelFlag) String() string {
	return logLevel.Level().String()
}

func (levelFlag) Set(val string) error {
	return LogSetLevel("log-level", val)
}

func init() {
	flag.Var(levelFlag{}, "log-level",
		"Log level [debug,info,warn,error,panic,fatal]")
}
