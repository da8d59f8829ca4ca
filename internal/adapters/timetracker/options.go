package timetracker

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/okian/ttlink/pkg/logger"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables the cap.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithAssignedOnly limits WorkItems to items assigned to the login user.
func WithAssignedOnly(on bool) Option {
	return func(c *Client) {
		c.assignedOnly = on
	}
}

// WithRounding sets how event bounds are moved onto half hour slots.
func WithRounding(m RoundingMethod) Option {
	return func(c *Client) {
		if m != "" {
			c.rounding = m
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}
