package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalRequests tracks the number of HTTP requests dispatched by the fetcher.
	TotalRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_requests_total",
		Help: "The total number of HTTP requests sent.",
	})
	// TotalRequestErrors tracks requests that ended in a transport error.
	TotalRequestErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_request_errors_total",
		Help: "The total number of failed HTTP requests.",
	})
	// TotalRateLimitHits tracks 429 responses.
	TotalRateLimitHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_rate_limit_hits_total",
		Help: "The total number of times the scraper was rate limited.",
	})
	// TotalForbiddenHits tracks 403 responses.
	TotalForbiddenHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_forbidden_hits_total",
		Help: "The total number of times the scraper received a forbidden response.",
	})
	// TotalBreakerRejections tracks fetches rejected by an open circuit breaker.
	TotalBreakerRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_breaker_rejections_total",
		Help: "The total number of fetches rejected without I/O by the open circuit breaker.",
	})
	// TotalRetries tracks retry attempts beyond the first request.
	TotalRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_retries_total",
		Help: "The total number of retry attempts.",
	})
)
