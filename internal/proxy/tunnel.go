package proxy

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"syscall"
	"time"
)

// Tunnel relays bytes between client and remote until both directions have
// ended, then closes both connections. The remote-to-client copy runs on
// exec; the client-to-remote copy runs on the calling goroutine.
//
// A direction that ends shuts down its own input and the other side's
// output, so the peer sees EOF while data still in flight the other way
// keeps draining.
func Tunnel(client, remote net.Conn, exec Executor, log *slog.Logger) {
	var wg sync.WaitGroup
	wg.Add(2)

	exec.Go(func() {
		defer wg.Done()
		n, err := pipe(client, remote)
		logCopy(log, "remote->client", n, err)
	})

	n, err := pipe(remote, client)
	logCopy(log, "client->remote", n, err)
	wg.Done()

	wg.Wait()
	_ = client.Close()
	_ = remote.Close()
}

func pipe(dst, src net.Conn) (int64, error) {
	buf := buffers.Get()
	defer buffers.Put(buf)

	var written int64
	var err error
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				err = werr
				break
			}
		}
		if rerr != nil {
			if errors.Is(rerr, os.ErrDeadlineExceeded) {
				// A deadline fired to interrupt the read, not because the
				// stream failed.
				if src.SetReadDeadline(time.Time{}) == nil {
					continue
				}
			}
			if rerr != io.EOF {
				err = rerr
			}
			break
		}
	}

	closeRead(src)
	closeWrite(dst)
	return written, err
}

func closeRead(c net.Conn) {
	if cr, ok := c.(interface{ CloseRead() error }); ok {
		_ = cr.CloseRead()
	}
}

// closeWrite half-closes c when it supports it. Other conns are left open
// until Tunnel closes both ends.
func closeWrite(c net.Conn) {
	if cw, ok := c.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}
}

func logCopy(log *slog.Logger, direction string, n int64, err error) {
	switch {
	case err == nil:
		log.Debug("tunnel direction done", "direction", direction, "bytes", n)
	case isBenign(err):
		log.Debug("tunnel direction ended", "direction", direction, "bytes", n, "err", err)
	default:
		log.Warn("tunnel direction failed", "direction", direction, "bytes", n, "err", err)
	}
}

func isBenign(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ENOTCONN) ||
		errors.Is(err, syscall.ETIMEDOUT)
}
