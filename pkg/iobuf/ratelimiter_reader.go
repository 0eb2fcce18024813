package iobuf

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// throttledReader paces reads to a byte rate. Bytes are paid for after they
// were read, so a short upstream read never waits for more than it got.
type throttledReader struct {
	ctx context.Context
	src io.ReadCloser
	lim *rate.Limiter
}

// NewRateLimitReader throttles r to kbps KiB per second, kbps <= 0 returns r
// untouched. Waiting ends with ctx's error once ctx is done.
func NewRateLimitReader(ctx context.Context, r io.ReadCloser, kbps int) io.ReadCloser {
	if kbps <= 0 {
		return r
	}
	bps := kbps << 10
	return &throttledReader{
		ctx: ctx,
		src: r,
		lim: rate.NewLimiter(rate.Limit(bps), bps),
	}
}

func (t *throttledReader) Read(p []byte) (int, error) {
	if burst := t.lim.Burst(); len(p) > burst {
		p = p[:burst]
	}

	n, err := t.src.Read(p)
	if n > 0 {
		if werr := t.lim.WaitN(t.ctx, n); werr != nil && err == nil {
			err = werr
		}
	}
	return n, err
}

func (t *throttledReader) Close() error {
	return t.src.Close()
}
