package zstd

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ZipMethod is the ZIP compression method id registered for zstd.
const ZipMethod = zstd.ZipMethodWinZip

var (
	// Encoder pools by compression level
	encoderPools = make(map[int]*sync.Pool)
	poolMu       sync.RWMutex
)

func getEncoderPool(level int) *sync.Pool {
	poolMu.RLock()
	pool, ok := encoderPools[level]
	poolMu.RUnlock()
	if ok {
		return pool
	}

	poolMu.Lock()
	defer poolMu.Unlock()

	if pool, ok = encoderPools[level]; ok {
		return pool
	}

	pool = &sync.Pool{
		New: func() interface{} {
			enc, _ := zstd.NewWriter(nil,
				zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
				zstd.WithEncoderConcurrency(1),
			)
			return enc
		},
	}
	encoderPools[level] = pool
	return pool
}

// pooledWriter returns its encoder to the pool on Close.
type pooledWriter struct {
	enc  *zstd.Encoder
	pool *sync.Pool
}

func (w *pooledWriter) Write(p []byte) (int, error) {
	return w.enc.Write(p)
}

func (w *pooledWriter) Close() error {
	err := w.enc.Close()
	w.enc.Reset(nil)
	w.pool.Put(w.enc)
	return err
}

// ZipCompressor returns a ZIP compressor producing zstd streams at the
// given level, drawing encoders from a pool.
func ZipCompressor(level int) func(w io.Writer) (io.WriteCloser, error) {
	pool := getEncoderPool(level)
	return func(w io.Writer) (io.WriteCloser, error) {
		enc := pool.Get().(*zstd.Encoder)
		enc.Reset(w)
		return &pooledWriter{enc: enc, pool: pool}, nil
	}
}

// ZipDecompressor returns a ZIP decompressor for zstd entries.
func ZipDecompressor() func(r io.Reader) io.ReadCloser {
	return zstd.ZipDecompressor()
}
