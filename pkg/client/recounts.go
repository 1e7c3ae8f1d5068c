package client

import (
	"context"
	"net/url"
	"time"

	apperrors "github.com/turtacn/ipscope/pkg/errors"
	"github.com/turtacn/ipscope/pkg/types/ipactivity"
)

// RecountsClient exposes the asynchronous recount endpoints.  Submit
// enqueues a background aggregation; Get retrieves its result once a worker
// has completed it.
type RecountsClient struct {
	client *Client
}

// Submit enqueues an asynchronous aggregation for the given assignee and
// returns the receipt carrying the request ID to poll with.
func (rc *RecountsClient) Submit(ctx context.Context, req ipactivity.RecountRequest) (*ipactivity.RecountReceipt, error) {
	if req.Assignee == "" {
		return nil, apperrors.New(apperrors.ErrCodeEmptyAssignee, "assignee must not be empty")
	}

	var receipt ipactivity.RecountReceipt
	if err := rc.client.post(ctx, "/api/v1/recounts", req, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Get retrieves a completed recount by request ID.  While the recount is
// still in flight the server answers 404; callers can distinguish "not done
// yet" via APIError.IsNotFound and poll again.
func (rc *RecountsClient) Get(ctx context.Context, requestID string) (*ipactivity.RecountResult, error) {
	if requestID == "" {
		return nil, apperrors.New(apperrors.ErrCodeBadRequest, "requestID must not be empty")
	}

	var result ipactivity.RecountResult
	if err := rc.client.get(ctx, "/api/v1/recounts/"+url.PathEscape(requestID), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Wait polls Get until the recount completes, the context expires, or the
// server returns a non-404 error.  interval must be positive.
func (rc *RecountsClient) Wait(ctx context.Context, requestID string, interval time.Duration) (*ipactivity.RecountResult, error) {
	if interval <= 0 {
		return nil, apperrors.New(apperrors.ErrCodeBadRequest, "poll interval must be positive")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := rc.Get(ctx, requestID)
		if err == nil {
			return result, nil
		}
		var apiErr *APIError
		if !apperrors.As(err, &apiErr) || !apiErr.IsNotFound() {
			return nil, err
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
