package zap

import (
	"go.uber.org/zap"

	client "github.com/jsp-lqk/bmemcached"
)

type ZapLogger struct{ L *zap.Logger }

var _ client.Logger = ZapLogger{}

func (z ZapLogger) Debug(msg string, f client.Fields) { z.L.Debug(msg, zf(f)...) }
func (z ZapLogger) Info(msg string, f client.Fields)  { z.L.Info(msg, zf(f)...) }
func (z ZapLogger) Warn(msg string, f client.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z ZapLogger) Error(msg string, f client.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f client.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}
