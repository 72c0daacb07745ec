package filecontent

import (
	"bytes"
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"azdo-mcp/server/internal/sanitize"
)

const (
	// DefaultChunkSize is the slice length used when none is configured.
	DefaultChunkSize int64 = 100000
	// DefaultChunkTimeout bounds a single chunk request.
	DefaultChunkTimeout = 5 * time.Minute

	instrumentationName = "azdo-mcp/server/internal/filecontent"
)

// ErrChunkTimeout is returned when one chunk request exceeds its ceiling.
var ErrChunkTimeout = errors.New("chunk fetch timed out")

// Options configures a Fetcher. Zero fields take defaults.
type Options struct {
	ChunkSize      int64
	ChunkTimeout   time.Duration
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

func (o *Options) setDefaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ChunkTimeout <= 0 {
		o.ChunkTimeout = DefaultChunkTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.TracerProvider == nil {
		o.TracerProvider = otel.GetTracerProvider()
	}
	if o.MeterProvider == nil {
		o.MeterProvider = otel.GetMeterProvider()
	}
}

// Fetcher reads files from a Source chunk by chunk. It keeps no state between
// calls and is safe for concurrent use.
type Fetcher struct {
	src       Source
	chunkSize int64
	timeout   time.Duration

	lg     *zap.Logger
	tracer trace.Tracer
	chunks metric.Int64Counter
	bytes  metric.Int64Counter
}

// NewFetcher creates a Fetcher over src.
func NewFetcher(src Source, opts Options) (*Fetcher, error) {
	if src == nil {
		return nil, errors.New("source is nil")
	}
	opts.setDefaults()

	meter := opts.MeterProvider.Meter(instrumentationName)
	chunks, err := meter.Int64Counter("filecontent.chunks",
		metric.WithDescription("Chunk requests issued to the file source"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "chunks counter")
	}
	received, err := meter.Int64Counter("filecontent.bytes",
		metric.WithDescription("Bytes received from the file source"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "bytes counter")
	}

	return &Fetcher{
		src:       src,
		chunkSize: opts.ChunkSize,
		timeout:   opts.ChunkTimeout,
		lg:        opts.Logger,
		tracer:    opts.TracerProvider.Tracer(instrumentationName),
		chunks:    chunks,
		bytes:     received,
	}, nil
}

// ChunkSize returns the slice length FetchComplete uses.
func (f *Fetcher) ChunkSize() int64 { return f.chunkSize }

// chunk is one classified source response.
type chunk struct {
	raw   *RawChunk
	start int64
	n     int64
	size  int64
	last  bool
}

// FetchChunk fetches at most length bytes of ref starting at start.
func (f *Fetcher) FetchChunk(ctx context.Context, ref FileRef, start, length int64) (*FileChunk, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if start < 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "start position %d is negative", start)
	}
	if length <= 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "length %d must be positive", length)
	}

	c, err := f.fetch(ctx, ref, start, length)
	if err != nil {
		return nil, err
	}

	out := &FileChunk{
		StartPosition: start,
		Length:        c.n,
		ContentType:   c.raw.ContentType,
		Size:          c.size,
		Position:      start,
		IsLastChunk:   c.last,
	}
	if sanitize.IsLikelyText(c.raw.IsBinary, c.raw.ContentType) {
		out.Content = sanitize.DecodeText(c.raw.Bytes)
	} else {
		preview := sanitize.HexPreview(c.raw.Bytes)
		out.Content = sanitize.BinaryMarker
		out.HexContent = &preview
		out.IsBinary = true
	}
	return out, nil
}

// FetchComplete reads the whole file and decodes it as UTF-8 text. Chunks are
// requested strictly in order, each at the count of bytes received so far.
func (f *Fetcher) FetchComplete(ctx context.Context, ref FileRef) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}

	var (
		buf      bytes.Buffer
		offset   int64
		requests int
	)
	for {
		if err := ctx.Err(); err != nil {
			return "", errors.Wrap(err, "fetch cancelled")
		}
		c, err := f.fetch(ctx, ref, offset, f.chunkSize)
		if err != nil {
			return "", err
		}
		requests++
		buf.Write(c.raw.Bytes)
		offset += c.n
		if c.last {
			break
		}
	}

	f.lg.Debug("File fetched",
		zap.String("repository", ref.RepositoryID),
		zap.String("path", ref.Path),
		zap.Int("chunks", requests),
		zap.Int64("bytes", offset),
	)
	return sanitize.DecodeText(buf.Bytes()), nil
}

type fetchResult struct {
	raw *RawChunk
	err error
}

// fetch issues one source request under the chunk ceiling. The request is
// abandoned as soon as ctx is done, even if the source ignores ctx.
func (f *Fetcher) fetch(ctx context.Context, ref FileRef, start, length int64) (_ *chunk, rerr error) {
	ctx, span := f.tracer.Start(ctx, "filecontent.fetch_chunk", trace.WithAttributes(
		attribute.String("azdo.repository", ref.RepositoryID),
		attribute.String("azdo.path", ref.Path),
		attribute.String("azdo.revision.kind", ref.Revision.Kind.String()),
		attribute.Int("azdo.pull_request", ref.PullRequestID),
		attribute.Int64("filecontent.start", start),
		attribute.Int64("filecontent.length", length),
	))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	chunkCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	f.chunks.Add(ctx, 1)
	done := make(chan fetchResult, 1)
	go func() {
		raw, err := f.src.GetFileContent(chunkCtx, ref, start, length)
		done <- fetchResult{raw: raw, err: err}
	}()

	var res fetchResult
	select {
	case res = <-done:
	case <-chunkCtx.Done():
		res.err = chunkCtx.Err()
	}
	if res.err != nil {
		if ctx.Err() == nil && errors.Is(chunkCtx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrapf(ErrChunkTimeout, "chunk at offset %d exceeded %s", start, f.timeout)
		}
		return nil, errors.Wrapf(res.err, "fetch %s at offset %d", ref.Path, start)
	}
	if res.raw == nil {
		return nil, errors.Errorf("fetch %s at offset %d: empty response", ref.Path, start)
	}

	raw := res.raw
	n := int64(len(raw.Bytes))
	if n > length {
		raw.Bytes = raw.Bytes[:length]
		n = length
	}
	f.bytes.Add(ctx, n)

	c := &chunk{raw: raw, start: start, n: n, size: raw.TotalSize}
	// An unknown size is at least what has been read; a reported size stands.
	if n > 0 && c.size < start+n {
		c.size = start + n
	}
	switch {
	case raw.IsLastChunk != nil && *raw.IsLastChunk:
		c.last = true
	case n < length:
		c.last = true
	case raw.TotalSize > 0 && start+n >= raw.TotalSize:
		c.last = true
	}
	span.SetAttributes(
		attribute.Int64("filecontent.received", n),
		attribute.Bool("filecontent.last", c.last),
	)
	return c, nil
}
