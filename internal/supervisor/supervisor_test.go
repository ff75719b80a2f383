package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"syscall"
	"testing"
	"time"

	"github.com/rodmena-limited/supervice/internal/config"
	"github.com/rodmena-limited/supervice/internal/process"
	"github.com/rodmena-limited/supervice/internal/rpc"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh/sleep and unix sockets")
	}
}

type testDaemon struct {
	s          *Supervisor
	client     *rpc.Client
	configPath string
	errCh      chan error
}

func startDaemon(t *testing.T, programs string) *testDaemon {
	t.Helper()
	requireUnix(t)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "supervice.conf")
	writeDaemonConfig(t, configPath, dir, programs)

	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	s := New(configPath, cfg)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()

	// Wait for the control socket to come up.
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(cfg.SocketPath); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	d := &testDaemon{s: s, client: rpc.NewClient(cfg.SocketPath), configPath: configPath, errCh: errCh}
	t.Cleanup(func() {
		s.Stop()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("daemon exited with error: %v", err)
			}
		case <-time.After(30 * time.Second):
			t.Error("daemon did not shut down")
		}
	})
	return d
}

func writeDaemonConfig(t *testing.T, configPath, dir, programs string) {
	t.Helper()
	body := fmt.Sprintf(`
[supervice]
socket = %s
pidfile = %s
shutdown_timeout = 10

%s`, filepath.Join(dir, "supervice.sock"), filepath.Join(dir, "supervice.pid"), programs)
	if err := os.WriteFile(configPath, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (d *testDaemon) statusMap(t *testing.T) map[string]map[string]any {
	t.Helper()
	resp, err := d.client.Status()
	if err != nil {
		t.Fatalf("status rpc: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("status response: %v", resp)
	}
	out := make(map[string]map[string]any)
	for _, raw := range resp["processes"].([]any) {
		p := raw.(map[string]any)
		out[p["name"].(string)] = p
	}
	return out
}

func (d *testDaemon) waitRunning(t *testing.T, name string) int {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		procs := d.statusMap(t)
		if p, ok := procs[name]; ok && p["state"] == "RUNNING" && p["pid"] != nil {
			return int(p["pid"].(float64))
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("%s never reached RUNNING", name)
	return 0
}

func TestAutostartAndStatus(t *testing.T) {
	d := startDaemon(t, `
[program:web]
command = /bin/sleep 3600
startsecs = 0
`)
	pid := d.waitRunning(t, "web")
	if pid <= 0 {
		t.Fatalf("bad pid %d", pid)
	}
	p := d.statusMap(t)["web"]
	if p["uptime_seconds"] == nil {
		t.Fatalf("uptime missing: %v", p)
	}
}

func TestAutostartFalseStaysStopped(t *testing.T) {
	d := startDaemon(t, `
[program:idle]
command = /bin/sleep 3600
autostart = false
`)
	time.Sleep(200 * time.Millisecond)
	p := d.statusMap(t)["idle"]
	if p["state"] != "STOPPED" || p["pid"] != nil {
		t.Fatalf("expected STOPPED with null pid, got %v", p)
	}

	if resp, err := d.client.Start("idle"); err != nil || resp["status"] != "ok" {
		t.Fatalf("start rpc: %v %v", resp, err)
	}
	d.waitRunning(t, "idle")
}

func TestNumprocsExpansion(t *testing.T) {
	d := startDaemon(t, `
[program:worker]
command = /bin/sleep 3600
numprocs = 3
startsecs = 0
`)
	for i := 0; i < 3; i++ {
		d.waitRunning(t, fmt.Sprintf("worker:%02d", i))
	}
	if _, ok := d.statusMap(t)["worker"]; ok {
		t.Fatal("bare name must not exist when numprocs > 1")
	}
}

func TestStopStartRoundTrip(t *testing.T) {
	d := startDaemon(t, `
[program:web]
command = /bin/sleep 3600
startsecs = 0
`)
	first := d.waitRunning(t, "web")
	if resp, err := d.client.Stop("web"); err != nil || resp["status"] != "ok" {
		t.Fatalf("stop rpc: %v %v", resp, err)
	}
	if p := d.statusMap(t)["web"]; p["state"] != "STOPPED" {
		t.Fatalf("state after stop: %v", p)
	}
	if err := syscall.Kill(first, 0); err == nil {
		t.Fatalf("child %d still alive after stop", first)
	}
	if resp, err := d.client.Start("web"); err != nil || resp["status"] != "ok" {
		t.Fatalf("start rpc: %v %v", resp, err)
	}
	second := d.waitRunning(t, "web")
	if second == first {
		t.Fatalf("restarted child reused pid %d", first)
	}
}

func TestRestartRPC(t *testing.T) {
	d := startDaemon(t, `
[program:web]
command = /bin/sleep 3600
startsecs = 0
`)
	first := d.waitRunning(t, "web")
	if resp, err := d.client.Restart("web", false); err != nil || resp["status"] != "ok" {
		t.Fatalf("restart rpc: %v %v", resp, err)
	}
	if second := d.waitRunning(t, "web"); second == first {
		t.Fatalf("restart kept pid %d", first)
	}
}

func TestGroupOperations(t *testing.T) {
	d := startDaemon(t, `
[program:a]
command = /bin/sleep 3600
startsecs = 0
[program:b]
command = /bin/sleep 3600
startsecs = 0
[group:stack]
programs = a, b
`)
	d.waitRunning(t, "a")
	d.waitRunning(t, "b")

	if resp, err := d.client.StopGroup("stack"); err != nil || resp["status"] != "ok" {
		t.Fatalf("stopgroup: %v %v", resp, err)
	}
	procs := d.statusMap(t)
	if procs["a"]["state"] != "STOPPED" || procs["b"]["state"] != "STOPPED" {
		t.Fatalf("group members not stopped: %v", procs)
	}

	if resp, err := d.client.StartGroup("stack"); err != nil || resp["status"] != "ok" {
		t.Fatalf("startgroup: %v %v", resp, err)
	}
	d.waitRunning(t, "a")
	d.waitRunning(t, "b")

	resp, err := d.client.StartGroup("nope")
	if err != nil {
		t.Fatalf("rpc error: %v", err)
	}
	if resp["status"] != "error" {
		t.Fatalf("unknown group must error: %v", resp)
	}
}

func TestReloadUnchangedIsNoop(t *testing.T) {
	d := startDaemon(t, `
[program:a]
command = /bin/sleep 3600
startsecs = 0
`)
	pid := d.waitRunning(t, "a")

	resp, err := d.client.Reload()
	if err != nil || resp["status"] != "ok" {
		t.Fatalf("reload: %v %v", resp, err)
	}
	for _, key := range []string{"added", "removed", "changed"} {
		if list := resp[key].([]any); len(list) != 0 {
			t.Fatalf("reload %s not empty: %v", key, list)
		}
	}
	if got := d.waitRunning(t, "a"); got != pid {
		t.Fatalf("no-op reload recycled child: %d -> %d", pid, got)
	}
}

func TestReloadDiff(t *testing.T) {
	d := startDaemon(t, `
[program:a]
command = /bin/sleep 3600
startsecs = 0
[program:b]
command = /bin/sleep 3600
startsecs = 0
`)
	pidA := d.waitRunning(t, "a")
	pidB := d.waitRunning(t, "b")

	// Remove b, add c.
	writeDaemonConfig(t, d.configPath, filepath.Dir(d.configPath), `
[program:a]
command = /bin/sleep 3600
startsecs = 0
[program:c]
command = /bin/sleep 3600
startsecs = 0
`)
	resp, err := d.client.Reload()
	if err != nil || resp["status"] != "ok" {
		t.Fatalf("reload: %v %v", resp, err)
	}
	added := resp["added"].([]any)
	removed := resp["removed"].([]any)
	changed := resp["changed"].([]any)
	if len(added) != 1 || added[0] != "c" {
		t.Fatalf("added = %v, want [c]", added)
	}
	if len(removed) != 1 || removed[0] != "b" {
		t.Fatalf("removed = %v, want [b]", removed)
	}
	if len(changed) != 0 {
		t.Fatalf("changed = %v, want []", changed)
	}

	procs := d.statusMap(t)
	if _, ok := procs["b"]; ok {
		t.Fatal("b still present after reload")
	}
	if err := syscall.Kill(pidB, 0); err == nil {
		t.Fatalf("removed child %d still alive", pidB)
	}
	if got := int(procs["a"]["pid"].(float64)); got != pidA {
		t.Fatalf("reload touched unrelated process a: %d -> %d", pidA, got)
	}
	d.waitRunning(t, "c")
}

func TestReloadReportsChangedWithoutApplying(t *testing.T) {
	d := startDaemon(t, `
[program:a]
command = /bin/sleep 3600
startsecs = 0
`)
	pid := d.waitRunning(t, "a")

	writeDaemonConfig(t, d.configPath, filepath.Dir(d.configPath), `
[program:a]
command = /bin/sleep 1800
startsecs = 0
`)
	resp, err := d.client.Reload()
	if err != nil || resp["status"] != "ok" {
		t.Fatalf("reload: %v %v", resp, err)
	}
	changed := resp["changed"].([]any)
	if len(changed) != 1 || changed[0] != "a" {
		t.Fatalf("changed = %v, want [a]", changed)
	}
	if got := d.waitRunning(t, "a"); got != pid {
		t.Fatalf("changed program was recycled: %d -> %d", pid, got)
	}
}

func TestReloadInvalidConfigChangesNothing(t *testing.T) {
	d := startDaemon(t, `
[program:a]
command = /bin/sleep 3600
startsecs = 0
`)
	pid := d.waitRunning(t, "a")

	// Break the config: tcp healthcheck without a port.
	writeDaemonConfig(t, d.configPath, filepath.Dir(d.configPath), `
[program:a]
command = /bin/sleep 3600
healthcheck_type = tcp
`)
	resp, err := d.client.Reload()
	if err != nil {
		t.Fatalf("rpc: %v", err)
	}
	if resp["status"] != "error" || resp["code"] != rpc.CodeInternalError {
		t.Fatalf("invalid reload response: %v", resp)
	}
	if got := d.waitRunning(t, "a"); got != pid {
		t.Fatalf("failed reload touched process: %d -> %d", pid, got)
	}
}

func TestShutdownReapsEverything(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "supervice.conf")
	writeDaemonConfig(t, configPath, dir, `
[program:one]
command = /bin/sleep 3600
startsecs = 0
[program:two]
command = /bin/sleep 3600
startsecs = 0
`)
	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	s := New(configPath, cfg)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()

	var pids []int
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		pids = pids[:0]
		for _, st := range s.Status() {
			if st.State == process.StateRunning && st.PID != nil {
				pids = append(pids, *st.PID)
			}
		}
		if len(pids) == 2 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if len(pids) != 2 {
		t.Fatalf("children never started: %v", s.Status())
	}

	s.Stop()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("shutdown did not complete")
	}
	for _, pid := range pids {
		if err := syscall.Kill(pid, 0); err == nil {
			t.Fatalf("child %d survived shutdown", pid)
		}
	}
	if _, err := os.Stat(cfg.SocketPath); !os.IsNotExist(err) {
		t.Fatalf("socket not removed after shutdown: %v", err)
	}
}

func TestPIDFileSingleInstance(t *testing.T) {
	requireUnix(t)
	path := filepath.Join(t.TempDir(), "supervice.pid")
	release, err := acquirePIDFile(path)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer release()

	if _, err := acquirePIDFile(path); err == nil {
		t.Fatal("second acquire must fail while the lock is held")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pidfile: %v", err)
	}
	if string(b) != fmt.Sprint(os.Getpid()) {
		t.Fatalf("pidfile content %q", b)
	}
}
