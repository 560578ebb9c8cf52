package reactor

import (
	"context"
	"io"
	"net"
	"os"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/cartridge/replay/internal/table"
	"github.com/cartridge/replay/pkg/replaypb"
)

// FastPathStream is the generic shape of the InitializeConnection stream
// handle, satisfied by replaypb.Replay_InitializeConnectionServer.
type FastPathStream interface {
	Send(*replaypb.InitializeConnectionResponse) error
	Recv() (*replaypb.InitializeConnectionRequest, error)
	Context() context.Context
}

// cellRegistry is the process-wide table of heap cells handed out to
// same-process clients; the fast path's "allocate a heap cell holding a
// strong reference, write its address" step has no meaningful analogue in
// Go's memory model (there is no way to hand a caller a raw pointer to a
// GC-managed object across an RPC boundary and have it be safe to
// dereference), so a synthetic address — an index into this registry — is
// substituted. The cell is deallocated (map entry cleared) on OnDone
// regardless of outcome, matching the spec's client-copies-not-takes intent.
type cellRegistry struct {
	mu   sync.Mutex
	next int64
	rows map[int64]table.Table
}

var fastPathCells = &cellRegistry{rows: make(map[int64]table.Table)}

func (c *cellRegistry) alloc(tbl table.Table) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	addr := c.next
	c.rows[addr] = tbl
	return addr
}

func (c *cellRegistry) free(addr int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rows, addr)
}

// Lookup resolves a fast-path address to the table it was allocated for, for
// use by an in-process client that received the address over the auxiliary
// stream. Returns (nil, false) once the cell has been freed.
func Lookup(addr int64) (table.Table, bool) {
	fastPathCells.mu.Lock()
	defer fastPathCells.mu.Unlock()
	tbl, ok := fastPathCells.rows[addr]
	return tbl, ok
}

// FastPathReactor drives one InitializeConnection RPC end to end (spec
// §4.5). Unlike Insert/SampleReactor there is no concurrent writer or
// asynchronous callback here — the handshake is strictly two synchronous
// round trips — so it needs none of the writer/callbackGate machinery.
type FastPathReactor struct {
	stream  FastPathStream
	resolve TableResolver
}

// NewFastPathReactor constructs a reactor ready to drive stream.
func NewFastPathReactor(stream FastPathStream, resolve TableResolver) *FastPathReactor {
	return &FastPathReactor{stream: stream, resolve: resolve}
}

// Run implements the handshake. An unknown table ends the call with
// NotFound and a second message without the ownership acknowledgement with
// Internal; errors from the stream itself are returned unchanged.
func (r *FastPathReactor) Run() error {
	if !isLoopbackOrInProcess(r.stream) {
		return nil
	}

	req, err := r.stream.Recv()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}

	if int64(os.Getpid()) != req.Pid {
		return r.stream.Send(&replaypb.InitializeConnectionResponse{Address: 0})
	}

	tbl, ok := r.resolve(req.TableName)
	if !ok {
		return status.Errorf(codes.NotFound, "table %q not found", req.TableName)
	}

	addr := fastPathCells.alloc(tbl)
	defer fastPathCells.free(addr)

	if err := r.stream.Send(&replaypb.InitializeConnectionResponse{Address: addr}); err != nil {
		return err
	}

	ack, err := r.stream.Recv()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	if !ack.OwnershipTransferred {
		return status.Error(codes.Internal, "expected ownership_transferred acknowledgement")
	}
	return nil
}

// isLoopbackOrInProcess reports whether the stream's peer is either a real
// loopback TCP connection or a bufconn-style in-process connection (which
// carries no *net.TCPAddr at all).
func isLoopbackOrInProcess(stream FastPathStream) bool {
	p, ok := peer.FromContext(stream.Context())
	if !ok || p.Addr == nil {
		return true
	}
	tcpAddr, ok := p.Addr.(*net.TCPAddr)
	if !ok {
		return true
	}
	return tcpAddr.IP.IsLoopback()
}
