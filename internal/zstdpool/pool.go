// Package zstdpool shares zstd decoders between archive readers.
package zstdpool

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Pool manages reusable zstd decoders.
type Pool struct {
	pool      sync.Pool
	maxMemory uint64
}

// New returns a pool whose decoders are limited to maxMemory bytes.
// Zero applies no limit.
func New(maxMemory uint64) *Pool {
	p := &Pool{maxMemory: maxMemory}
	p.pool.New = func() any {
		dec, err := p.newDecoder(nil)
		if err != nil {
			return nil
		}
		return dec
	}
	return p
}

// Default is the pool used when none is configured.
var Default = New(0)

// Get returns a decoder reading from r and a release function that must be
// called when the decoder is no longer used.
func (p *Pool) Get(r io.Reader) (*zstd.Decoder, func(), error) {
	dec, ok := p.pool.Get().(*zstd.Decoder)
	if !ok || dec == nil {
		fresh, err := p.newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return fresh, fresh.Close, nil
	}
	if err := dec.Reset(r); err != nil {
		dec.Close()
		fresh, err := p.newDecoder(r)
		if err != nil {
			return nil, nil, err
		}
		return fresh, fresh.Close, nil
	}
	return dec, func() {
		_ = dec.Reset(nil)
		p.pool.Put(dec)
	}, nil
}

// NewReader returns a ReadCloser decoding r. Close returns the decoder to
// the pool; it does not close r.
func (p *Pool) NewReader(r io.Reader) (io.ReadCloser, error) {
	dec, release, err := p.Get(r)
	if err != nil {
		return nil, err
	}
	return &reader{dec: dec, release: release}, nil
}

// Decompressor adapts the pool to the zip package's decompressor signature.
// Decoder errors surface on the first Read.
func (p *Pool) Decompressor() func(io.Reader) io.ReadCloser {
	return func(r io.Reader) io.ReadCloser {
		rc, err := p.NewReader(r)
		if err != nil {
			return errReader{err}
		}
		return rc
	}
}

func (p *Pool) newDecoder(r io.Reader) (*zstd.Decoder, error) {
	if p.maxMemory == 0 {
		return zstd.NewReader(r)
	}
	return zstd.NewReader(r, zstd.WithDecoderMaxMemory(p.maxMemory))
}

type reader struct {
	dec     *zstd.Decoder
	release func()
}

func (r *reader) Read(p []byte) (int, error) {
	if r.dec == nil {
		return 0, io.ErrClosedPipe
	}
	return r.dec.Read(p)
}

func (r *reader) Close() error {
	if r.dec != nil {
		r.release()
		r.dec = nil
	}
	return nil
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }
func (e errReader) Close() error             { return nil }
