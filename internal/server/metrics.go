package server

import (
	"go.opentelemetry.io/otel/metric"
)

type serverMetrics struct {
	requests       metric.Int64Counter
	duration       metric.Float64Histogram
	inflight       metric.Int64UpDownCounter
	transcriptions metric.Int64Counter
	recognizeTime  metric.Float64Histogram
	audioBytes     metric.Int64Counter
}

func newServerMetrics(meter metric.Meter) (*serverMetrics, error) {
	var (
		m   serverMetrics
		err error
	)
	if m.requests, err = meter.Int64Counter("http.server.requests",
		metric.WithDescription("HTTP requests served")); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("http.server.request.duration",
		metric.WithUnit("s"),
		metric.WithDescription("HTTP request latency")); err != nil {
		return nil, err
	}
	if m.inflight, err = meter.Int64UpDownCounter("http.server.active_requests",
		metric.WithDescription("HTTP requests in flight")); err != nil {
		return nil, err
	}
	if m.transcriptions, err = meter.Int64Counter("scribe.transcriptions",
		metric.WithDescription("Transcription jobs by task, format and status")); err != nil {
		return nil, err
	}
	if m.recognizeTime, err = meter.Float64Histogram("scribe.recognize.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time spent in the recognizer")); err != nil {
		return nil, err
	}
	if m.audioBytes, err = meter.Int64Counter("scribe.audio.bytes",
		metric.WithUnit("By"),
		metric.WithDescription("Uploaded audio volume")); err != nil {
		return nil, err
	}
	return &m, nil
}
