package core

import "context"

// Requester identifies who asked for a run or reset.
type Requester struct {
	IP        string
	UserAgent string
}

type requesterKey struct{}

// WithRequester attaches req to ctx for run logs and results.
func WithRequester(ctx context.Context, req Requester) context.Context {
	return context.WithValue(ctx, requesterKey{}, req)
}

// RequesterFrom returns the requester recorded on ctx, or the zero value.
func RequesterFrom(ctx context.Context) Requester {
	req, _ := ctx.Value(requesterKey{}).(Requester)
	return req
}
