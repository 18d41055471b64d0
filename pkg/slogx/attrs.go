package slogx

import (
	"fmt"
	"log/slog"
	"reflect"
)

// Error returns a slog.Attr representing the provided error.
// The attribute key is "error" and the value is the error's message.
// A nil error yields an empty message rather than a panic.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// Stringer creates a slog.Attr with the provided key and the string representation
// of the given fmt.Stringer value.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	if value == nil {
		return slog.String(key, "<nil>")
	}
	return slog.String(key, value.String())
}

// Type creates a slog.Attr holding the Go type name of typ, "<nil>" when typ is nil.
func Type(key string, typ reflect.Type) slog.Attr {
	if typ == nil {
		return slog.String(key, "<nil>")
	}
	return slog.String(key, typ.String())
}

// TypeOf creates a slog.Attr holding the dynamic Go type name of value.
func TypeOf(key string, value any) slog.Attr {
	return Type(key, reflect.TypeOf(value))
}

const (
	// KeyLoggerName is the key for the logger name attribute.
	KeyLoggerName = "logger"
)

// LoggerName creates a slog.Attr with the provided logger name.
// The attribute key is defined by KeyLoggerName.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}
