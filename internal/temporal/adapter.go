package temporal

import (
	"fmt"
	"reflect"

	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
)

// zapAdapter bridges the Temporal SDK logger interface onto zap so SDK
// internals log through the same pipeline as the rest of the orchestrator.
type zapAdapter struct {
	logger *zap.Logger
}

// NewZapAdapter wraps a zap logger for use as the Temporal SDK logger.
func NewZapAdapter(logger *zap.Logger) log.Logger {
	return &zapAdapter{logger: logger}
}

func (z *zapAdapter) Debug(msg string, keyvals ...interface{}) {
	z.logger.Debug(msg, toFields(keyvals)...)
}

func (z *zapAdapter) Info(msg string, keyvals ...interface{}) {
	z.logger.Info(msg, toFields(keyvals)...)
}

func (z *zapAdapter) Warn(msg string, keyvals ...interface{}) {
	z.logger.Warn(msg, toFields(keyvals)...)
}

func (z *zapAdapter) Error(msg string, keyvals ...interface{}) {
	z.logger.Error(msg, toFields(keyvals)...)
}

// With satisfies the SDK's structured-context extension.
func (z *zapAdapter) With(keyvals ...interface{}) log.Logger {
	return &zapAdapter{logger: z.logger.With(toFields(keyvals)...)}
}

func toFields(keyvals []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, safeField(key, keyvals[i+1]))
	}
	return fields
}

// safeField guards against values zap.Any cannot serialize. The SDK passes
// arbitrary keyvals, including funcs and channels, on some error paths.
func safeField(key string, val interface{}) (field zap.Field) {
	defer func() {
		if r := recover(); r != nil {
			field = zap.String(key, fmt.Sprintf("<unserializable: %v>", r))
		}
	}()

	if val == nil {
		return zap.String(key, "<nil>")
	}
	switch reflect.ValueOf(val).Kind() {
	case reflect.Func:
		return zap.String(key, "<func>")
	case reflect.Chan:
		return zap.String(key, "<chan>")
	case reflect.UnsafePointer:
		return zap.String(key, "<unsafe.Pointer>")
	case reflect.Invalid:
		return zap.String(key, "<invalid>")
	default:
		return zap.Any(key, val)
	}
}
