package pool

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	smtpclient "github.com/mailgear/go-smtpclient"
	"github.com/mailgear/go-smtpclient/metrics"
)

// NewConnectBreaker returns a factory that creates circuit breakers for
// session establishment, for use as Config.NewBreaker. The breaker trips
// once at least three connects were counted in the interval and 60% of them
// failed, and allows maxRequests probes after timeout.
func NewConnectBreaker(maxRequests uint32, interval, timeout time.Duration) func(string) *gobreaker.CircuitBreaker[*smtpclient.Session] {
	return func(name string) *gobreaker.CircuitBreaker[*smtpclient.Session] {
		return newConnectBreaker(name, maxRequests, interval, timeout, logrus.StandardLogger())
	}
}

func newConnectBreaker(name string, maxRequests uint32, interval, timeout time.Duration, log logrus.FieldLogger) *gobreaker.CircuitBreaker[*smtpclient.Session] {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerTransitionsTotal.WithLabelValues(name, to.String()).Inc()
			log.WithFields(logrus.Fields{
				"pool": name,
				"from": from.String(),
				"to":   to.String(),
			}).Warn("connect circuit breaker changed state")
		},
	}
	return gobreaker.NewCircuitBreaker[*smtpclient.Session](settings)
}
