/*
 * COPYRIGHT 2021 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

// Package zaperr implements errors carrying key/value context, in the style of
// zap's sugared logging calls.  The errors marshal themselves as zap objects,
// so a lookup failure deep in the object manager arrives in the log with the
// mac address or vdev id that could not be resolved.
package zaperr

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapError is the structured error type.  It is exported for lint reasons.
type ZapError struct {
	msg   string
	cause error
	kv    []interface{}
}

func (ze ZapError) Error() string {
	if ze.cause != nil {
		return ze.msg + ": " + ze.cause.Error()
	}
	return ze.msg
}

// Cause returns the wrapped error, for use with github.com/pkg/errors.Cause.
func (ze ZapError) Cause() error {
	return ze.cause
}

// Unwrap returns the wrapped error, for use with the standard errors package.
func (ze ZapError) Unwrap() error {
	return ze.cause
}

// Fields returns the key/value pairs attached to the error, suitable for
// passing to a sugared logger's *w methods.
func (ze ZapError) Fields() []interface{} {
	return ze.kv
}

// MarshalLogObject implements zapcore.ObjectMarshaler.  Strongly-typed fields
// are added as-is; everything else is consumed as key/value pairs.  A dangling
// key or a non-string key is reported rather than dropped.
func (ze ZapError) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("msg", ze.msg)
	if ze.cause != nil {
		enc.AddString("cause", ze.cause.Error())
	}

	for i := 0; i < len(ze.kv); {
		if field, ok := ze.kv[i].(zapcore.Field); ok {
			field.AddTo(enc)
			i++
			continue
		}

		if i == len(ze.kv)-1 {
			zap.Any("ignored", ze.kv[i]).AddTo(enc)
			break
		}

		key, val := ze.kv[i], ze.kv[i+1]
		if keyStr, ok := key.(string); ok {
			zap.Any(keyStr, val).AddTo(enc)
		} else {
			zap.Any("invalid", []interface{}{key, val}).AddTo(enc)
		}
		i += 2
	}

	return nil
}

// Errorw returns an error which contains a message and an array of key/value
// pairs, which can be logged in structured fashion by zap.
func Errorw(msg string, args ...interface{}) ZapError {
	return ZapError{
		msg: msg,
		kv:  args,
	}
}

// Wrapw is like Errorw, but records cause as the underlying error.  Callers
// can still match the cause with errors.Cause() or errors.Is().
func Wrapw(cause error, msg string, args ...interface{}) ZapError {
	return ZapError{
		msg:   msg,
		cause: cause,
		kv:    args,
	}
}
