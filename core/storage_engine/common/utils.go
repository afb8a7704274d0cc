package common

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/zeebo/blake3"
	"golang.org/x/time/rate"
)

// chunkSize is the size of each read/write chunk and the limiter burst.
const chunkSize = 256 * 1024

// ErrSameFile is returned when the copy destination is the source file.
var ErrSameFile = errors.New("destination is the source file")

var bufPool = sync.Pool{
	New: func() interface{} { return make([]byte, chunkSize) },
}

// Digest is the BLAKE3-256 sum of copied bytes.
type Digest [32]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// CopyThrottled copies srcPath to dstPath at no more than rateBytesPerSec
// (unlimited when <= 0) and returns the digest of the bytes written. The
// destination is created with mode 0600 and synced before returning. On
// error the partial destination is removed. A destination that is the source
// file itself is rejected before anything is opened for writing.
func CopyThrottled(ctx context.Context, srcPath, dstPath string, rateBytesPerSec int64) (Digest, error) {
	var digest Digest

	src, err := os.Open(srcPath)
	if err != nil {
		return digest, fmt.Errorf("open src: %w", err)
	}
	defer src.Close()

	srcInfo, err := src.Stat()
	if err != nil {
		return digest, fmt.Errorf("stat src: %w", err)
	}
	if dstInfo, err := os.Stat(dstPath); err == nil && os.SameFile(srcInfo, dstInfo) {
		return digest, fmt.Errorf("%w: %s", ErrSameFile, dstPath)
	}

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return digest, fmt.Errorf("open dst: %w", err)
	}

	sum, err := copyChunks(ctx, src, dst, rateBytesPerSec)
	if err == nil {
		if serr := dst.Sync(); serr != nil {
			err = fmt.Errorf("sync error: %w", serr)
		}
	}
	if cerr := dst.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close dst: %w", cerr)
	}
	if err != nil {
		_ = os.Remove(dstPath)
		return digest, err
	}
	copy(digest[:], sum)
	return digest, nil
}

func copyChunks(ctx context.Context, src io.ReaderAt, dst io.Writer, rateBytesPerSec int64) ([]byte, error) {
	var limiter *rate.Limiter
	if rateBytesPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(rateBytesPerSec), chunkSize)
	}

	buf := bufPool.Get().([]byte)
	defer bufPool.Put(buf)

	hasher := blake3.New()
	var readOff int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, rerr := src.ReadAt(buf[:chunkSize], readOff)
		if n > 0 {
			if limiter != nil {
				if err := limiter.WaitN(ctx, n); err != nil {
					return nil, fmt.Errorf("rate limiter error: %w", err)
				}
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return nil, fmt.Errorf("write error: %w", err)
			}
			_, _ = hasher.Write(buf[:n])
			readOff += int64(n)
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return hasher.Sum(nil), nil
			}
			return nil, fmt.Errorf("read error: %w", rerr)
		}
	}
}
