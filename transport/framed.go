package transport

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/opd-ai/secstream/codec"
)

const (
	// readChunkSize is the transport read granularity.
	readChunkSize = 4096

	// writeHighWater is the buffered-bytes threshold above which Ready
	// flushes before accepting another value.
	writeHighWater = 64 * 1024

	// maxEmptyReads bounds consecutive (0, nil) transport reads before the
	// read loop gives up with io.ErrNoProgress.
	maxEmptyReads = 100
)

// readDeadliner is satisfied by net.Conn and anything else whose blocked
// reads can be interrupted.
type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// remoteAddrConn is satisfied by transports that know their peer address.
// The address is diagnostic only.
type remoteAddrConn interface {
	RemoteAddr() net.Addr
}

// FramedConn adapts a byte-oriented transport and a codec into a duplex of
// typed protocol values: a lazy producer of ingress values and a buffering
// acceptor of egress values with explicit flush and close.
//
// The read path accumulates transport bytes until the codec can decode a
// full frame, so arbitrarily fragmented reads are handled. The write path
// buffers encoded frames; nothing reaches the transport before Flush.
//
// One goroutine may drive reads while another drives writes; neither side is
// safe for multiple concurrent callers.
type FramedConn struct {
	rw io.ReadWriteCloser
	c  *codec.Codec

	readBuf bytes.Buffer
	readTmp []byte

	writeMu  sync.Mutex
	writeBuf bytes.Buffer
	closed   bool
}

// NewFramedConn wraps transport rw with the given codec.
func NewFramedConn(rw io.ReadWriteCloser, c *codec.Codec) *FramedConn {
	return &FramedConn{
		rw:      rw,
		c:       c,
		readTmp: make([]byte, readChunkSize),
	}
}

// Codec returns the codec driving this adapter.
func (f *FramedConn) Codec() *codec.Codec {
	return f.c
}

// RemoteAddr returns the transport's peer address when it exposes one, nil
// otherwise.
func (f *FramedConn) RemoteAddr() net.Addr {
	if conn, ok := f.rw.(remoteAddrConn); ok {
		return conn.RemoteAddr()
	}
	return nil
}

// ReadValue blocks until one full ingress value is available and returns it.
// It returns io.EOF when the transport ends cleanly between frames,
// ErrTruncatedFrame when it ends inside one, and forwards transport and
// decode errors unchanged.
//
// When the transport supports read deadlines, a blocked ReadValue is
// interrupted by ctx cancellation; otherwise cancellation takes effect
// between reads.
func (f *FramedConn) ReadValue(ctx context.Context) (*codec.IngressValue, error) {
	if stop := f.interruptOnCancel(ctx); stop != nil {
		defer stop()
	}

	emptyReads := 0
	for {
		v, err := f.c.Decode(&f.readBuf)
		if err != nil {
			return nil, err
		}
		if v != nil {
			return v, nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := f.rw.Read(f.readTmp)
		if n > 0 {
			emptyReads = 0
			f.readBuf.Write(f.readTmp[:n])
			continue
		}
		if err == nil {
			emptyReads++
			if emptyReads >= maxEmptyReads {
				return nil, io.ErrNoProgress
			}
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err == io.EOF {
			if f.readBuf.Len() > 0 {
				return nil, ErrTruncatedFrame
			}
			return nil, io.EOF
		}
		return nil, err
	}
}

// interruptOnCancel arranges for ctx cancellation to unblock a pending
// transport read by expiring its read deadline. The returned stop func
// restores a zero deadline if the watcher fired, so a later ReadValue sees
// the transport unpoisoned. Returns nil when the transport has no deadline
// support or the context can never be cancelled.
func (f *FramedConn) interruptOnCancel(ctx context.Context) func() {
	d, ok := f.rw.(readDeadliner)
	if !ok || ctx.Done() == nil {
		return nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			_ = d.SetReadDeadline(time.Now())
			<-stop
			_ = d.SetReadDeadline(time.Time{})
		case <-stop:
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}

// WriteValue encodes v into the write buffer. Acceptance does not imply
// transmission; call Flush to push buffered frames to the transport.
func (f *FramedConn) WriteValue(v *codec.EgressValue) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if f.closed {
		return ErrConnClosed
	}
	return f.c.Encode(v, &f.writeBuf)
}

// Ready prepares the adapter to accept another value, flushing first when
// the write buffer is past its high-water mark. It is the backpressure point
// preceding each WriteValue.
func (f *FramedConn) Ready() error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if f.closed {
		return ErrConnClosed
	}
	if f.writeBuf.Len() < writeHighWater {
		return nil
	}
	return f.flushLocked()
}

// Flush writes all buffered frames to the transport.
func (f *FramedConn) Flush() error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if f.closed {
		return ErrConnClosed
	}
	return f.flushLocked()
}

func (f *FramedConn) flushLocked() error {
	if f.writeBuf.Len() == 0 {
		return nil
	}
	_, err := f.writeBuf.WriteTo(f.rw)
	return err
}

// Close flushes buffered frames and closes the underlying transport. It is
// idempotent; no writes are valid afterwards.
func (f *FramedConn) Close() error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	flushErr := f.flushLocked()
	closeErr := f.rw.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
