package auth

import "time"

// Callback outcomes reported to MetricsRecorder.RecordCallback.
const (
	CallbackSuccess             = "success"
	CallbackMissingCode         = "missing_code"
	CallbackUpstreamAuthFailure = "upstream_auth_failure"
	CallbackUpstreamUnavailable = "upstream_unavailable"
	CallbackIdentityConflict    = "identity_conflict"
	CallbackInactive            = "inactive"
	CallbackError               = "error"
)

// MetricsRecorder receives auth flow events. The metrics package provides
// the Prometheus implementation.
type MetricsRecorder interface {
	RecordLoginStarted()
	RecordCallback(result string)
	RecordUpstreamLatency(endpoint string, d time.Duration)
	RecordTokenRejected(reason string)
}

type noopMetrics struct{}

func (noopMetrics) RecordLoginStarted()                          {}
func (noopMetrics) RecordCallback(string)                        {}
func (noopMetrics) RecordUpstreamLatency(string, time.Duration) {}
func (noopMetrics) RecordTokenRejected(string)                   {}
