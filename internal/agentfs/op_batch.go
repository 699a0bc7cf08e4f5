package agentfs

import (
	"context"
	"errors"
)

// BatchRead runs req.Items through [Core.Read] sequentially, one per item.
// Semantically equivalent to issuing each read independently: an error on
// one item never aborts the rest.
func (c *Core) BatchRead(ctx context.Context, req BatchReadRequest) BatchReadResponse {
	items := make([]BatchItemOutcome[ReadResult], len(req.Items))

	summary := BatchSummary{Total: len(req.Items)}

	for i, item := range req.Items {
		result, err := c.Read(ctx, item)
		if err != nil {
			items[i] = BatchItemOutcome[ReadResult]{Err: asOpError(err)}
			summary.Failed++

			continue
		}

		items[i] = BatchItemOutcome[ReadResult]{Result: &result}
		summary.Succeeded++
	}

	return BatchReadResponse{Items: items, Summary: summary}
}

// BatchWrite runs req.Items through [Core.Write] sequentially, one per item.
func (c *Core) BatchWrite(ctx context.Context, req BatchWriteRequest) BatchWriteResponse {
	items := make([]BatchItemOutcome[WriteResult], len(req.Items))

	summary := BatchSummary{Total: len(req.Items)}

	for i, item := range req.Items {
		result, err := c.Write(ctx, item)
		if err != nil {
			items[i] = BatchItemOutcome[WriteResult]{Err: asOpError(err)}
			summary.Failed++

			continue
		}

		items[i] = BatchItemOutcome[WriteResult]{Result: &result}
		summary.Succeeded++
	}

	return BatchWriteResponse{Items: items, Summary: summary}
}

// BatchUpdate runs req.Items through [Core.Update] sequentially, one per
// item. Each item independently resolves to success, contention, or error.
func (c *Core) BatchUpdate(ctx context.Context, req BatchUpdateRequest) BatchUpdateResponse {
	items := make([]BatchItemOutcome[UpdateResult], len(req.Items))

	summary := BatchSummary{Total: len(req.Items)}

	for i, item := range req.Items {
		result, contention, err := c.Update(ctx, item)

		switch {
		case err != nil:
			items[i] = BatchItemOutcome[UpdateResult]{Err: asOpError(err)}
			summary.Failed++
		case contention != nil:
			items[i] = BatchItemOutcome[UpdateResult]{Contention: contention}
			summary.Contention++
		default:
			items[i] = BatchItemOutcome[UpdateResult]{Result: result}
			summary.Succeeded++
		}
	}

	return BatchUpdateResponse{Items: items, Summary: summary}
}

// asOpError unwraps err to its *OpError form. Every error returned by a Tool
// Operation is already an *OpError (via mapError/newOpError), so this only
// guards against a future operation forgetting to wrap one.
func asOpError(err error) *OpError {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr
	}

	return newOpError(CodeServerError, "", err)
}
