// Package retryhttp builds the shared *http.Client used against the mindar
// service. Requests are retried on connection errors and on 502/503
// responses with exponential backoff; every other status is returned as is.
package retryhttp

import (
	"context"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/navikt/mindar/pkg/config"
	"github.com/rs/zerolog"
)

var retryStatusCodes = map[int]struct{}{
	http.StatusBadGateway:         {},
	http.StatusServiceUnavailable: {},
}

func CheckRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	if _, ok := retryStatusCodes[resp.StatusCode]; ok {
		return true, nil
	}

	return false, nil
}

// NewClient returns a standard *http.Client backed by a retrying transport.
// The configured timeout applies to each attempt, so backoff sleeps between
// attempts do not count against it. A zero timeout leaves attempts unbounded,
// which is what streaming downloads need.
func NewClient(cfg config.Transport, log zerolog.Logger) *http.Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = cfg.Timeout()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = cfg.RetryWaitMin()
	rc.RetryWaitMax = cfg.RetryWaitMax()
	rc.CheckRetry = CheckRetry
	rc.Backoff = retryablehttp.DefaultBackoff
	// Hand the last response back so the caller can report its status
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = &leveledLogger{log: log.With().Str("subsystem", "retryhttp").Logger()}

	return rc.StandardClient()
}

type leveledLogger struct {
	log zerolog.Logger
}

var _ retryablehttp.LeveledLogger = &leveledLogger{}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info().Fields(keysAndValues).Msg(msg)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}
