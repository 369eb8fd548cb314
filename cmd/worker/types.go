package main

import "context"

// Mailer delivers a rendered email and returns the provider's message id.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) (string, error)
}

// Metrics records counters.
type Metrics interface {
	Count(ctx context.Context, name string, dims map[string]string)
}
