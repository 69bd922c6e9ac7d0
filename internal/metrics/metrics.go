// Package metrics exposes Prometheus collectors for the OAuth token
// lifecycle and Gmail traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	OAuthCallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmailagent_oauth_callbacks_total",
		Help: "OAuth callbacks by outcome",
	}, []string{"result"})

	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmailagent_token_refreshes_total",
		Help: "Access token refresh attempts by outcome",
	}, []string{"result"})

	TokenValidHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gmailagent_token_valid_hits_total",
		Help: "Access token lookups served without a refresh",
	})

	GmailRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmailagent_gmail_requests_total",
		Help: "Gmail API calls by operation and outcome",
	}, []string{"operation", "result"})

	GmailDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gmailagent_gmail_request_duration_seconds",
		Help:    "Gmail API call latency",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"operation"})

	AgentTurns = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gmailagent_agent_turns",
		Help:    "Model turns per agent conversation",
		Buckets: prometheus.LinearBuckets(1, 1, 10),
	})
)

func result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}

// RecordCallback counts an OAuth callback outcome.
func RecordCallback(ok bool) {
	OAuthCallbacks.WithLabelValues(result(ok)).Inc()
}

// RecordRefresh counts a token refresh outcome.
func RecordRefresh(ok bool) {
	TokenRefreshes.WithLabelValues(result(ok)).Inc()
}

// RecordGmail counts a Gmail API call and observes its latency in seconds.
func RecordGmail(operation string, ok bool, seconds float64) {
	GmailRequests.WithLabelValues(operation, result(ok)).Inc()
	GmailDuration.WithLabelValues(operation).Observe(seconds)
}
