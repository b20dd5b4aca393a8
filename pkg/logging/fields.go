package logging

import "time"

// Common field constructors.

func String(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Field helpers for the engine's recurring attributes.

func Component(name string) Field { return String("component", name) }

func SegmentPath(p string) Field { return String("segment", p) }

func SegmentID(id string) Field { return String("segment_id", id) }

func Records(n int) Field { return Int("records", n) }

func Bytes(n int) Field { return Int("bytes", n) }

func Latency(d time.Duration) Field { return Duration("latency", d) }
