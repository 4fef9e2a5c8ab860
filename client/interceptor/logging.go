package interceptor

import (
	"net/http"

	"github.com/rs/zerolog"
)

// Logging is a side-effect-only passthrough interceptor logging requests and
// responses at debug level.
type Logging struct {
	logger zerolog.Logger
}

var (
	_ RequestInterceptor  = (*Logging)(nil)
	_ ResponseInterceptor = (*Logging)(nil)
)

// NewLogging creates a logging interceptor writing to the given logger.
func NewLogging(logger zerolog.Logger) *Logging {
	return &Logging{logger: logger}
}

func (l *Logging) InterceptRequest(req *http.Request) (*http.Request, error) {
	l.logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Msg("outgoing request")
	return req, nil
}

func (l *Logging) InterceptResponse(resp *http.Response) (*http.Response, error) {
	event := l.logger.Debug().Int("status", resp.StatusCode)
	if resp.Request != nil {
		event = event.Str("url", resp.Request.URL.String())
	}
	event.Msg("incoming response")
	return resp, nil
}
