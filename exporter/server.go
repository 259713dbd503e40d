package exporter

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gabrielpetry/MangoHud/internal/errors"
	"github.com/gabrielpetry/MangoHud/internal/logger"
	"golang.org/x/sys/unix"
)

const (
	// acceptTimeout bounds how long cancellation can go unobserved while
	// blocked in Accept.
	acceptTimeout = time.Second

	// readBufferSize is the whole request budget. Scrape requests are never
	// chunked or streamed; anything larger is not a request this server
	// answers.
	readBufferSize = 1024

	notFoundResponse = "HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"
)

// listen resolves the configured address and binds the metrics endpoint.
// IPv4 only, matching the overlay's deployment surface.
func (e *Exporter) listen() (net.Listener, error) {
	errFactory := errors.New()

	host, port := parseListenAddress(e.cfg.ListenAddress)

	lc := net.ListenConfig{Control: enableAddressReuse}
	ln, err := lc.Listen(context.Background(), "tcp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, errFactory.Wrap(ErrListenFailed, err)
	}

	return ln, nil
}

// enableAddressReuse sets SO_REUSEADDR before bind. Best-effort: a failure
// is a warning, never fatal.
func enableAddressReuse(_, _ string, c syscall.RawConn) error {
	var sockErr error
	if err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		sockErr = err
	}
	if sockErr != nil {
		logger.Warn().Err(sockErr).Msg("Failed to set SO_REUSEADDR on metrics socket")
	}

	return nil
}

// acceptLoop serves connections one at a time until cancellation. Deadline
// expiry is the periodic cancellation check; a closed listener means Stop
// ran. Anything else ends the listener early, leaving the rest of the
// exporter running.
func (e *Exporter) acceptLoop(ctx context.Context, ln net.Listener) {
	errFactory := errors.New()
	tcpLn, hasDeadline := ln.(*net.TCPListener)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if hasDeadline {
			_ = tcpLn.SetDeadline(time.Now().Add(acceptTimeout))
		}

		conn, err := ln.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.ErrorWithCode(errFactory.Wrap(ErrAcceptFailed, err)).
				Msg("Stopping metrics listener")

			return
		}

		e.handleConn(conn)
		conn.Close()
	}
}

// handleConn answers exactly one request synchronously on the accept
// goroutine. The request is read in a single call; there is no
// per-connection deadline beyond the buffer size.
func (e *Exporter) handleConn(conn net.Conn) {
	buf := make([]byte, readBufferSize)
	n, err := conn.Read(buf)
	if err != nil && n == 0 {
		logger.Debug().Err(err).Msg("Dropping metrics connection: read failed")
		return
	}

	if !isMetricsRequest(buf[:n]) {
		writeResponse(conn, []byte(notFoundResponse))
		return
	}

	snap := e.cache.load()
	body := renderExposition(&snap, time.Now().UnixMilli())

	var resp bytes.Buffer
	resp.Grow(len(body) + 128)
	fmt.Fprintf(&resp, "HTTP/1.1 200 OK\r\nContent-Type: %s\r\nContent-Length: %d\r\nConnection: close\r\n\r\n",
		contentType, len(body))
	resp.Write(body)

	writeResponse(conn, resp.Bytes())
}

// isMetricsRequest inspects only the request line: the GET method on the
// metrics path. A query string is ignored.
func isMetricsRequest(req []byte) bool {
	line := req
	if i := bytes.Index(line, []byte("\r\n")); i >= 0 {
		line = line[:i]
	}

	fields := strings.Fields(string(line))
	if len(fields) < 2 || fields[0] != "GET" {
		return false
	}

	path, _, _ := strings.Cut(fields[1], "?")

	return path == "/metrics"
}

func writeResponse(conn net.Conn, resp []byte) {
	if _, err := conn.Write(resp); err != nil {
		logger.Debug().Err(err).Msg("Dropping metrics connection: write failed")
	}
}
