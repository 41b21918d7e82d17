package stats

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"

	"go.uber.org/zap"
)

// ReloadFunc rebuilds the handler pipeline from the current
// configuration and swaps it in atomically; in-flight transactions
// finish under the old pipeline. A returned error means the reload was
// rejected and the old pipeline stays in place, with the error
// reported back over the control connection.
type ReloadFunc func() error

// ShutdownFunc begins a graceful drain-then-stop: listeners close
// first, then the work queue drains up to the grace period.
type ShutdownFunc func()

// ControlServer implements the newline-delimited control protocol:
// "stats" returns a key=value dump, "reload" returns "ok" or
// "error: <message>", "shutdown" returns "ok" and initiates drain.
// One connection handles one command and closes, a simple
// line-oriented UNIX socket protocol rather than a persistent session.
type ControlServer struct {
	Counters *Counters
	Reload   ReloadFunc
	Shutdown ShutdownFunc
	Logger   *zap.Logger

	listener net.Listener
}

// Listen binds the control socket at path, removing any stale socket
// file left behind by a prior, uncleanly terminated process first.
func (s *ControlServer) Listen(path string) error {
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("stats: control socket listen %s: %w", path, err)
	}
	s.listener = ln
	return nil
}

// Serve accepts connections until Close is called, handling each on
// its own goroutine since commands are fast and independent.
func (s *ControlServer) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handle(conn)
	}
}

// Close stops accepting new control connections.
func (s *ControlServer) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *ControlServer) handle(conn net.Conn) {
	defer conn.Close()
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return
	}
	cmd := strings.ToLower(strings.TrimSpace(line))

	var reply string
	switch cmd {
	case "stats":
		reply = s.Counters.Dump()
	case "reload":
		if err := s.Reload(); err != nil {
			s.Logger.Warn("reload rejected", zap.Error(err))
			reply = fmt.Sprintf("error: %v\n", err)
		} else {
			reply = "ok\n"
		}
	case "shutdown":
		reply = "ok\n"
		s.Shutdown()
	default:
		reply = fmt.Sprintf("error: unknown command %q\n", cmd)
	}
	_, _ = conn.Write([]byte(reply))
}
