package client

import (
	"context"
	"net/url"
	"strconv"

	apperrors "github.com/turtacn/ipscope/pkg/errors"
	"github.com/turtacn/ipscope/pkg/types/ipactivity"
)

// IPDataClient exposes the synchronous aggregation endpoint.
type IPDataClient struct {
	client *Client
}

// Aggregate looks up IP activity for one assignee name.  When tryVariants is
// true the server also queries common corporate-suffix variations of the
// name and merges the results.  The returned AggregateResult includes the
// full per-attempt trace in its Debug field.
func (ic *IPDataClient) Aggregate(ctx context.Context, assignee string, tryVariants bool) (*ipactivity.AggregateResult, error) {
	if assignee == "" {
		return nil, apperrors.New(apperrors.ErrCodeEmptyAssignee, "assignee must not be empty")
	}

	q := url.Values{}
	q.Set("assignee", assignee)
	q.Set("tryVariants", strconv.FormatBool(tryVariants))

	var result ipactivity.AggregateResult
	if err := ic.client.get(ctx, "/api/ipdata?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}
