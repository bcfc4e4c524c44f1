package ipc_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"drowsy/internal/daemon"
	"drowsy/internal/detection"
	"drowsy/internal/history"
	"drowsy/internal/ipc"
	"drowsy/internal/logging"
	"drowsy/internal/mockservice"
	"drowsy/internal/testsupport"
)

func startIPC(t *testing.T, mockOpts mockservice.Options) *ipc.Client {
	t.Helper()
	_, serviceURL := testsupport.StartMockService(t, mockOpts)
	cfg := testsupport.NewConfig(t, testsupport.WithServiceURL(serviceURL), testsupport.WithoutAPI())
	store := testsupport.MustOpenHistory(t, cfg)
	logger := logging.NewNop()

	d, err := daemon.New(cfg, logger, daemon.Dependencies{
		Camera:  daemon.NewCamera(cfg, logger),
		Service: detection.NewFromConfig(cfg),
		History: store,
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})
	return client
}

func TestIPCServerClient(t *testing.T) {
	client := startIPC(t, mockservice.Options{Pattern: mockservice.PatternCycle})

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.Session.State != "idle" {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.CameraDevice != "virtual" {
		t.Fatalf("camera device = %q", status.CameraDevice)
	}

	startResp, err := client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}
	if !startResp.Session.Detecting || startResp.Session.SessionID == "" {
		t.Fatalf("unexpected session %+v", startResp.Session)
	}

	// A second start while active is ignored.
	again, err := client.Start()
	if err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if again.Session.SessionID != startResp.Session.SessionID {
		t.Fatalf("second start replaced session: %s != %s", again.Session.SessionID, startResp.Session.SessionID)
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped || stopResp.Session.State != "idle" || stopResp.Session.Detecting {
		t.Fatalf("unexpected stop response %+v", stopResp)
	}

	var list *ipc.HistoryResponse
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		list, err = client.History(10)
		if err != nil {
			t.Fatalf("History RPC failed: %v", err)
		}
		if len(list.Sessions) == 1 && list.Sessions[0].Outcome == history.OutcomeEnded {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(list.Sessions) != 1 || list.Sessions[0].ID != startResp.Session.SessionID {
		t.Fatalf("unexpected history %+v", list.Sessions)
	}

	detail, err := client.SessionDetail(startResp.Session.SessionID)
	if err != nil {
		t.Fatalf("SessionDetail RPC failed: %v", err)
	}
	if detail.Session.EndReason != "stopped" {
		t.Fatalf("end reason = %q", detail.Session.EndReason)
	}
	if _, err := client.SessionDetail("missing"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}

	pruned, err := client.Prune(time.Hour)
	if err != nil {
		t.Fatalf("Prune RPC failed: %v", err)
	}
	if pruned.Removed != 0 {
		t.Fatalf("pruned %d fresh sessions", pruned.Removed)
	}
	if _, err := client.Prune(0); err == nil {
		t.Fatal("expected error for zero prune age")
	}

	notify, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification RPC failed: %v", err)
	}
	if notify.Sent || notify.Message != "ntfy topic not configured" {
		t.Fatalf("unexpected notification response %+v", notify)
	}
}

func TestIPCStartReportsRejection(t *testing.T) {
	client := startIPC(t, mockservice.Options{RejectStart: "Model not loaded"})

	resp, err := client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if resp.Started {
		t.Fatal("expected Started=false")
	}
	if resp.Message != "Model not loaded" || resp.Session.State != "error" {
		t.Fatalf("unexpected response %+v", resp)
	}
}
