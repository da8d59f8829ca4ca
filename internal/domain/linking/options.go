package linking

import (
	"github.com/okian/ttlink/internal/domain/ignore"
	"github.com/okian/ttlink/pkg/logger"
)

// DefaultConfidenceThreshold is used when Options.ConfidenceThreshold is zero.
const DefaultConfidenceThreshold = 0.7

// Options are the per-pass switches read from settings.
type Options struct {
	// AutoLink enables history lookup and AI suggestions.
	AutoLink bool
	// UseAI enables AI suggestions; it has no effect without AutoLink.
	UseAI bool
	// ConfidenceThreshold is the minimum accepted AI confidence.
	ConfidenceThreshold float64
}

func (o Options) threshold() float64 {
	if o.ConfidenceThreshold <= 0 {
		return DefaultConfidenceThreshold
	}
	return o.ConfidenceThreshold
}

// TimeOffRule links events whose name matches any pattern to WorkItemID.
type TimeOffRule struct {
	NamePatterns []ignore.Pattern
	WorkItemID   string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSuggester sets the AI collaborator.
func WithSuggester(s Suggester) Option {
	return func(r *Resolver) {
		r.suggester = s
	}
}

// WithTimeOff sets the time-off rule applied before history.
func WithTimeOff(rule TimeOffRule) Option {
	return func(r *Resolver) {
		r.timeOff = rule
	}
}

// WithWorkSchedule links events carrying a working event type to workItemID.
func WithWorkSchedule(workItemID string) Option {
	return func(r *Resolver) {
		r.scheduleItem = workItemID
	}
}

// WithConcurrency bounds how many events ResolveAll resolves at once.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}
