package control

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testSocketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), fmt.Sprintf("control-%d.sock", os.Getpid()))
}

func startTestServer(t *testing.T, handler HandleFunc) string {
	t.Helper()
	path := testSocketPath(t)
	srv := NewServer(path)
	srv.RegisterHandler(handler)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen() }()
	t.Cleanup(func() { srv.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("server socket %s never appeared", path)
	return ""
}

func TestLaunchRoundtrip(t *testing.T) {
	path := startTestServer(t, func(req Message) Message {
		if req.MsgType != MsgTLaunch {
			return Message{MsgType: MsgTError, Err: "unexpected type"}
		}
		return NewLaunchResponse(fmt.Sprintf("/KVChannel%d", req.WorkerID), nil)
	})

	c, err := Dial(path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	resp, err := c.Send(NewLaunchRequest(1, 7, "/data/db1", false, 0, nil))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.ChannelName != "/KVChannel7" {
		t.Fatalf("got channel name %q", resp.ChannelName)
	}
}

func TestTerminateError(t *testing.T) {
	path := startTestServer(t, func(req Message) Message {
		return NewTerminateResponse(fmt.Errorf("worker %d not found", req.WorkerID))
	})

	c, err := Dial(path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	_, err = c.Send(NewTerminateRequest(99))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestConcurrentRequestsAreCorrelated(t *testing.T) {
	path := startTestServer(t, func(req Message) Message {
		return NewLaunchResponse(fmt.Sprintf("/KVChannel%d", req.WorkerID), nil)
	})

	c, err := Dial(path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	const n = 20
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			resp, err := c.Send(NewLaunchRequest(1, uint32(i), "/data/db1", false, 0, nil))
			if err != nil {
				errs <- err
				return
			}
			want := fmt.Sprintf("/KVChannel%d", i)
			if resp.ChannelName != want {
				errs <- fmt.Errorf("got %q want %q", resp.ChannelName, want)
				return
			}
			errs <- nil
		}(i)
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Fatal(err)
		}
	}
}
