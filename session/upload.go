package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/chatwire/config"
	"github.com/pithecene-io/chatwire/iox"
	"github.com/pithecene-io/chatwire/source"
	"github.com/pithecene-io/chatwire/stream"
	"github.com/pithecene-io/chatwire/types"
)

// UploadOutcome is the final state of one upload.
type UploadOutcome struct {
	// ID is the upload correlation id.
	ID   string
	Name string

	State types.UploadState
	// Result is set when the upload completed.
	Result *types.UploadResult
	// Error is the raw backend error when the server reported a failure.
	Error string
}

// Completed reports whether the backend accepted the file.
func (o *UploadOutcome) Completed() bool {
	return o != nil && o.State.Status == types.UploadStatusCompleted
}

// sourceBody closes the payload together with the progress stream.
type sourceBody struct {
	io.ReadCloser
	payload io.Closer
}

func (b sourceBody) Close() error {
	defer iox.DiscardClose(b.payload)
	return b.ReadCloser.Close()
}

// Upload sends one payload under a fresh correlation id and consumes its
// progress stream. Cancel ctx to abort. A server-reported failure returns a
// nil error with State.Status set to error; transport failures, aborts and
// streams without a terminal event return a *stream.StreamError alongside
// the outcome. sink may be nil.
func (c *Client) Upload(ctx context.Context, src source.Source, sink func(stream.UploadEvent)) (*UploadOutcome, error) {
	out := &UploadOutcome{ID: stream.NewUploadID(), Name: src.Name()}

	open := func(ctx context.Context) (io.ReadCloser, error) {
		obj, err := src.Open(ctx)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", src.Name(), err)
		}
		body, err := c.backend.StreamUpload(ctx, out.ID, obj.Name, obj.Body)
		if err != nil {
			iox.DiscardClose(obj.Body)
			return nil, err
		}
		return sourceBody{ReadCloser: body, payload: obj.Body}, nil
	}

	state, err := c.uploads.Run(stream.NewCancelHandle(ctx), out.ID, open, func(ev stream.UploadEvent) {
		switch ev.Kind {
		case stream.UploadCompleted:
			out.Result = ev.Result
		case stream.UploadFailed:
			out.Error = ev.Error
		}
		if sink != nil {
			sink(ev)
		}
	})
	out.State = state
	return out, err
}

// UploadAll runs one upload per source, at most upload.concurrency at a
// time. Uploads are independent: a failure never cancels the others.
// Outcomes are in source order; the error joins every per-upload error.
// sink is called from several goroutines and must be safe for concurrent use.
func (c *Client) UploadAll(ctx context.Context, srcs []source.Source, sink func(stream.UploadEvent)) ([]*UploadOutcome, error) {
	limit := c.cfg.Upload.Concurrency
	if limit <= 0 {
		limit = config.DefaultUploadConcurrency
	}

	outcomes := make([]*UploadOutcome, len(srcs))
	errs := make([]error, len(srcs))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, src := range srcs {
		g.Go(func() error {
			out, err := c.Upload(ctx, src, sink)
			outcomes[i] = out
			if err != nil {
				errs[i] = fmt.Errorf("upload %s: %w", src.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, errors.Join(errs...)
}
