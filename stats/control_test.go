package stats

import (
	"bufio"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startControl(t *testing.T, reload ReloadFunc, shutdown ShutdownFunc) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "control.sock")
	s := &ControlServer{
		Counters: NewCounters(nil),
		Reload:   reload,
		Shutdown: shutdown,
		Logger:   zap.NewNop(),
	}
	require.NoError(t, s.Listen(path))
	go func() { _ = s.Serve() }()
	t.Cleanup(func() { _ = s.Close() })
	return path
}

func sendCommand(t *testing.T, path, cmd string) string {
	t.Helper()
	conn, err := net.DialTimeout("unix", path, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(cmd + "\n"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var out []byte
	r := bufio.NewReader(conn)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			break
		}
	}
	return string(out)
}

func TestControlStatsReturnsCounterDump(t *testing.T) {
	path := startControl(t, func() error { return nil }, func() {})
	reply := sendCommand(t, path, "stats")
	assert.Contains(t, reply, "decode_failures=0")
	assert.Contains(t, reply, "disposition.emitted=0")
}

func TestControlReloadReportsOkAndError(t *testing.T) {
	fail := false
	path := startControl(t, func() error {
		if fail {
			return errors.New("bad handler config")
		}
		return nil
	}, func() {})

	assert.Equal(t, "ok\n", sendCommand(t, path, "reload"))

	fail = true
	assert.Contains(t, sendCommand(t, path, "reload"), "error: bad handler config")
}

func TestControlShutdownAcknowledgesThenInvokesCallback(t *testing.T) {
	called := make(chan struct{}, 1)
	path := startControl(t, func() error { return nil }, func() { called <- struct{}{} })

	assert.Equal(t, "ok\n", sendCommand(t, path, "shutdown"))
	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("shutdown callback never ran")
	}
}

func TestControlRejectsUnknownCommand(t *testing.T) {
	path := startControl(t, func() error { return nil }, func() {})
	assert.Contains(t, sendCommand(t, path, "selfdestruct"), "error: unknown command")
}
