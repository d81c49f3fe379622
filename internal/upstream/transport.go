package upstream

import (
	"net/http"

	"golang.org/x/time/rate"
)

// throttledTransport waits on a shared token bucket before each request. A
// wait that cannot finish before the request deadline fails the round trip,
// which the client reports as KindUnreachable.
type throttledTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *throttledTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}
