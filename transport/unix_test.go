package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// fakeBus listens on a unix socket and runs the server half of the
// SASL handshake for one client, answering with reply. It returns
// the socket path and a channel that yields the accepted connection
// once the handshake is done. The caller must close the connection.
func fakeBus(t *testing.T, reply string) (string, <-chan *net.UnixConn) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "bus.sock")
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Net: "unix", Name: sock})
	if err != nil {
		t.Fatalf("listening on %q: %v", sock, err)
	}
	t.Cleanup(func() { ln.Close() })

	ret := make(chan *net.UnixConn, 1)
	go func() {
		defer close(ret)
		conn, err := ln.AcceptUnix()
		if err != nil {
			return
		}
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				conn.Close()
				return
			}
			if line == "BEGIN\r\n" {
				break
			}
		}
		io.WriteString(conn, reply)
		ret <- conn
	}()
	return sock, ret
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDialUnix(t *testing.T) {
	sock, srv := fakeBus(t, "OK 0123456789abcdef\r\nAGREE_UNIX_FD\r\n")
	tr, err := DialUnix(testContext(t), sock)
	if err != nil {
		t.Fatalf("DialUnix() got err: %v", err)
	}
	defer tr.Close()
	conn := <-srv
	if conn == nil {
		t.Fatal("server did not complete handshake")
	}
	defer conn.Close()
	if got := tr.(*unixTransport).guid; got != "0123456789abcdef" {
		t.Errorf("server guid = %q, want %q", got, "0123456789abcdef")
	}

	if _, err := tr.Write([]byte("hello")); err != nil {
		t.Fatalf("Write() got err: %v", err)
	}
	got := make([]byte, 5)
	if _, err := io.ReadFull(conn, got); err != nil {
		t.Fatalf("server read got err: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("server read %q, want %q", got, "hello")
	}

	if _, err := conn.Write([]byte("world")); err != nil {
		t.Fatalf("server write got err: %v", err)
	}
	if _, err := io.ReadFull(tr, got); err != nil {
		t.Fatalf("Read() got err: %v", err)
	}
	if string(got) != "world" {
		t.Errorf("Read() = %q, want %q", got, "world")
	}
}

func TestDialUnixRejected(t *testing.T) {
	tests := []struct {
		name, reply, wantErr string
	}{
		{"auth", "REJECTED EXTERNAL\r\n", "AUTH EXTERNAL failed"},
		{"unix fd", "OK 0123\r\nERROR\r\n", "NEGOTIATE_UNIX_FD failed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sock, srv := fakeBus(t, tc.reply)
			tr, err := DialUnix(testContext(t), sock)
			if conn := <-srv; conn != nil {
				conn.Close()
			}
			if err == nil {
				tr.Close()
				t.Fatal("DialUnix() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("DialUnix() got err %q, want %q", err, tc.wantErr)
			}
		})
	}
}

func TestDialAbstract(t *testing.T) {
	tr, err := Dial(testContext(t), Address{Path: "dbuswire-test-no-such-socket", Abstract: true})
	if err == nil {
		tr.Close()
		t.Fatal("Dial() to nonexistent abstract socket succeeded")
	}
}

func TestFiles(t *testing.T) {
	sock, srv := fakeBus(t, "OK 0123\r\nAGREE_UNIX_FD\r\n")
	tr, err := DialUnix(testContext(t), sock)
	if err != nil {
		t.Fatalf("DialUnix() got err: %v", err)
	}
	defer tr.Close()
	conn := <-srv
	if conn == nil {
		t.Fatal("server did not complete handshake")
	}
	defer conn.Close()

	f, err := os.CreateTemp(t.TempDir(), "fd")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString("payload"); err != nil {
		t.Fatal(err)
	}

	// Client to server.
	if _, err := tr.WriteWithFiles([]byte("msg"), []*os.File{f}); err != nil {
		t.Fatalf("WriteWithFiles() got err: %v", err)
	}
	buf := make([]byte, 16)
	oob := make([]byte, 64)
	n, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		t.Fatalf("server ReadMsgUnix() got err: %v", err)
	}
	if got := string(buf[:n]); got != "msg" {
		t.Errorf("server read %q, want %q", got, "msg")
	}
	scms, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil || len(scms) != 1 {
		t.Fatalf("parsing control message: %v (%d messages)", err, len(scms))
	}
	fds, err := unix.ParseUnixRights(&scms[0])
	if err != nil || len(fds) != 1 {
		t.Fatalf("parsing unix rights: %v (%d fds)", err, len(fds))
	}

	// And back again.
	if _, _, err := conn.WriteMsgUnix([]byte("ack"), unix.UnixRights(fds[0]), nil); err != nil {
		t.Fatalf("server WriteMsgUnix() got err: %v", err)
	}
	unix.Close(fds[0])

	got := make([]byte, 3)
	if _, err := io.ReadFull(tr, got); err != nil {
		t.Fatalf("Read() got err: %v", err)
	}
	if string(got) != "ack" {
		t.Errorf("Read() = %q, want %q", got, "ack")
	}
	files, err := tr.GetFiles(1)
	if err != nil {
		t.Fatalf("GetFiles(1) got err: %v", err)
	}
	defer files[0].Close()
	bs, err := io.ReadAll(io.NewSectionReader(files[0], 0, 64))
	if err != nil {
		t.Fatalf("reading received file: %v", err)
	}
	if !bytes.Equal(bs, []byte("payload")) {
		t.Errorf("received file contains %q, want %q", bs, "payload")
	}

	if _, err := tr.GetFiles(1); err == nil {
		t.Error("GetFiles(1) with no queued files succeeded")
	}
}

func TestCloseDuringRead(t *testing.T) {
	sock, srv := fakeBus(t, "OK 0123\r\nAGREE_UNIX_FD\r\n")
	tr, err := DialUnix(testContext(t), sock)
	if err != nil {
		t.Fatalf("DialUnix() got err: %v", err)
	}
	conn := <-srv
	if conn == nil {
		t.Fatal("server did not complete handshake")
	}
	defer conn.Close()

	type result struct {
		err      error
		panicked any
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{panicked: p}
			}
		}()
		_, err := io.ReadFull(tr, make([]byte, 16))
		done <- result{err: err}
	}()

	// Give the reader time to block in the socket read.
	time.Sleep(50 * time.Millisecond)
	if err := tr.Close(); err != nil {
		t.Fatalf("Close() got err: %v", err)
	}
	select {
	case res := <-done:
		if res.panicked != nil {
			t.Fatalf("Read() panicked after Close: %v", res.panicked)
		}
		if !errors.Is(res.err, net.ErrClosed) {
			t.Errorf("Read() after Close got err %v, want net.ErrClosed", res.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Read() did not return after Close")
	}
}

func TestDiscardFiles(t *testing.T) {
	sock, srv := fakeBus(t, "OK 0123\r\nAGREE_UNIX_FD\r\n")
	tr, err := DialUnix(testContext(t), sock)
	if err != nil {
		t.Fatalf("DialUnix() got err: %v", err)
	}
	defer tr.Close()
	conn := <-srv
	if conn == nil {
		t.Fatal("server did not complete handshake")
	}
	defer conn.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if _, _, err := conn.WriteMsgUnix([]byte("fd"), unix.UnixRights(int(w.Fd()), int(w.Fd())), nil); err != nil {
		t.Fatalf("server WriteMsgUnix() got err: %v", err)
	}
	w.Close()

	if _, err := io.ReadFull(tr, make([]byte, 2)); err != nil {
		t.Fatalf("Read() got err: %v", err)
	}
	if got := tr.DiscardFiles(); got != 2 {
		t.Errorf("DiscardFiles() = %d, want 2", got)
	}
	if got := tr.DiscardFiles(); got != 0 {
		t.Errorf("second DiscardFiles() = %d, want 0", got)
	}
	if _, err := tr.GetFiles(1); err == nil {
		t.Error("GetFiles(1) after DiscardFiles succeeded")
	}

	if err := r.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("read from pipe got err %v, want io.EOF", err)
	}
}
