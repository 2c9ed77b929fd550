package storage

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/airbusgeo/osio"
	"github.com/airbusgeo/osio/gcs"
)

type gsContext struct {
	client  *storage.Client
	adapter *osio.Adapter
}

func newGSContext(ctx context.Context, blockSize string, numBlocks int) (*gsContext, error) {
	stcl, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage.newclient: %w", err)
	}
	gcsh, err := gcs.Handle(ctx, gcs.GCSClient(stcl))
	if err != nil {
		stcl.Close()
		return nil, fmt.Errorf("gcs.handle: %w", err)
	}
	gcsa, err := osio.NewAdapter(gcsh, osio.BlockSize(blockSize), osio.NumCachedBlocks(numBlocks))
	if err != nil {
		stcl.Close()
		return nil, fmt.Errorf("osio.new: %w", err)
	}
	return &gsContext{client: stcl, adapter: gcsa}, nil
}

type gsReader struct {
	*osio.Reader
}

func (gsReader) Close() error { return nil }

func (g *gsContext) Open(_ context.Context, u URI) (Reader, error) {
	r, err := g.adapter.Reader(u.Tray + "/" + u.Object)
	if err != nil {
		return nil, err
	}
	return gsReader{r}, nil
}

// gsWriter uploads an object, which is created on Close. Cancelling its
// context discards the upload.
type gsWriter struct {
	*storage.Writer
	cancel context.CancelFunc
}

func (w gsWriter) Close() error {
	defer w.cancel()
	return w.Writer.Close()
}

func (w gsWriter) Abort() error {
	w.cancel()
	w.Writer.Close()
	return nil
}

func (g *gsContext) Create(ctx context.Context, u URI) (io.WriteCloser, error) {
	wctx, cancel := context.WithCancel(ctx)
	return gsWriter{Writer: g.client.Bucket(u.Tray).Object(u.Object).NewWriter(wctx), cancel: cancel}, nil
}

func (g *gsContext) Close() error {
	return g.client.Close()
}
