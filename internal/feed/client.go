package feed

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"cpcal/internal/config"
	appLog "cpcal/internal/log"
)

// RetryableStatusCodes are retried by the HTTP client.
var RetryableStatusCodes = []int{
	http.StatusRequestTimeout,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return "unexpected status " + strconv.Itoa(e.StatusCode) + " " + http.StatusText(e.StatusCode)
}

// NewHTTPClient builds a resty client with retries and a circuit breaker
// in the transport. 5xx responses count as breaker failures.
func NewHTTPClient(cfg config.FeedConfig, serviceName string) *resty.Client {
	client := resty.New()

	client.SetTimeout(cfg.Timeout)
	client.SetRetryCount(cfg.RetryCount)
	client.SetRetryWaitTime(cfg.RetryBackoff)
	client.SetRetryMaxWaitTime(cfg.RetryBackoff * 5)
	client.SetLogger(restyLogger{service: serviceName})
	client.SetHeader("User-Agent", "cpcal/1.0")

	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return !errors.Is(err, gobreaker.ErrOpenState)
		}
		for _, status := range RetryableStatusCodes {
			if r.StatusCode() == status {
				return true
			}
		}
		return false
	})

	bc := cfg.Breaker
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        serviceName + "_circuit_breaker",
		MaxRequests: uint32(max(bc.HalfOpenRequests, 1)),
		Interval:    bc.Window,
		Timeout:     bc.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= uint32(max(bc.MinRequests, 1)) &&
				failureRatio >= float64(bc.FailureRatio)/100.0
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			appLog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})

	client.SetTransport(&BreakerTransport{
		breaker:     breaker,
		next:        http.DefaultTransport,
		serviceName: serviceName,
	})

	client.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		if resp.Request.Attempt > 1 {
			appLog.Info("feed http retry attempt",
				"service", serviceName,
				"url", redactURL(resp.Request.URL),
				"attempt", resp.Request.Attempt,
				"status", resp.StatusCode(),
			)
		}
		return nil
	})

	return client
}

// BreakerTransport wraps a RoundTripper with a circuit breaker.
type BreakerTransport struct {
	breaker     *gobreaker.CircuitBreaker
	next        http.RoundTripper
	serviceName string
}

func (t *BreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	result, err := t.breaker.Execute(func() (interface{}, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, &StatusError{StatusCode: resp.StatusCode}
		}

		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			appLog.Warn("circuit breaker is open", "service", t.serviceName, "url", redactURL(req.URL.String()))
		}
		return nil, err
	}

	return result.(*http.Response), nil
}

// restyLogger routes resty's internal messages to the app log.
type restyLogger struct {
	service string
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	appLog.Error("resty", errors.Errorf(format, v...), "service", l.service)
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	appLog.Warn("resty: "+fmt.Sprintf(format, v...), "service", l.service)
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	appLog.Debug("resty: "+fmt.Sprintf(format, v...), "service", l.service)
}

// redactURL hides path and query of a URL for logging. Feed URLs may carry
// API keys or private tokens.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "feed://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' && u[j] != '?' {
		j++
	}
	return u[:j] + redactedSuffix
}

func windowString(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
