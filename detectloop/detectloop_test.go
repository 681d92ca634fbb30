package detectloop

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/radkum/redr/cleaner"
	"github.com/radkum/redr/event"
	"github.com/radkum/redr/kernelchan"
	"github.com/radkum/redr/scanner"
	"github.com/radkum/redr/sigstore"
)

type memFile struct {
	*bytes.Reader
}

func newMemFile(data []byte) *memFile { return &memFile{Reader: bytes.NewReader(data)} }

type recordingExecutor struct {
	actions []cleaner.Action
}

func (r *recordingExecutor) Execute(a cleaner.Action) error {
	r.actions = append(r.actions, a)
	return nil
}

func writeShaRule(t *testing.T, dir, name string, content []byte) {
	t.Helper()
	sum := sha256.Sum256(content)
	doc := fmt.Sprintf("name: %s\ndescription: test marker\nsha256: %q\n", name, hex.EncodeToString(sum[:]))
	if err := os.WriteFile(filepath.Join(dir, name+".yml"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write rule: %v", err)
	}
}

func writeEventRule(t *testing.T, dir string) {
	t.Helper()
	doc := "name: suspicious-process\n" +
		"description: test marker\n" +
		"event:\n" +
		"  ProcessCreate:\n" +
		"    path: 'C:\\evil.exe'\n"
	if err := os.WriteFile(filepath.Join(dir, "proc.yml"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write rule: %v", err)
	}
}

func TestLoopDispatchesFileCreateToScanner(t *testing.T) {
	dir := t.TempDir()
	marker := []byte("malicious marker")
	writeShaRule(t, dir, "eicar", marker)

	store, err := sigstore.LoadFromDir(dir)
	if err != nil {
		t.Fatalf("LoadFromDir: %v", err)
	}

	sc := scanner.New(store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sc.Run(ctx) }()

	exec := &recordingExecutor{}
	cc := kernelchan.NewChanConn(4)

	openFile := func(path string) (scanner.ReadSeekerAt, int64, error) {
		return newMemFile(marker), int64(len(marker)), nil
	}

	loop := New(cc, store, sc, exec, openFile)

	frame := event.Encode(event.FileCreate{Path: "C:\\evil.bin"})
	cc.Inbound <- frame

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(exec.actions) == 0 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for a cleaner action")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	if !strings.Contains(exec.actions[0].String(), "delete") {
		t.Fatalf("expected a delete action, got %s", exec.actions[0])
	}

	select {
	case reply := <-cc.Outbound:
		if len(reply) != 4 || reply[0] != 1 {
			t.Fatalf("expected a malicious verdict reply, got %v", reply)
		}
	default:
		t.Fatalf("expected a verdict reply on the kernel channel")
	}
}

func TestLoopDispatchesProcessCreateToBehavioralMatcher(t *testing.T) {
	dir := t.TempDir()
	writeEventRule(t, dir)

	store, err := sigstore.LoadFromDir(dir)
	if err != nil {
		t.Fatalf("LoadFromDir: %v", err)
	}

	sc := scanner.New(store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sc.Run(ctx) }()

	exec := &recordingExecutor{}
	cc := kernelchan.NewChanConn(4)
	openFile := func(path string) (scanner.ReadSeekerAt, int64, error) {
		return nil, 0, fmt.Errorf("not used in this test")
	}
	loop := New(cc, store, sc, exec, openFile)

	frame := event.Encode(event.ProcessCreate{Pid: 4242, Path: `C:\evil.exe`})
	cc.Inbound <- frame

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(exec.actions) == 0 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for a cleaner action")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	if !exec.actions[0].IsProcess() || exec.actions[0].Pid != 4242 {
		t.Fatalf("expected a terminate action for pid 4242, got %s", exec.actions[0])
	}
}

func TestWatchStdinShutdownFiresOnQ(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := strings.NewReader("xyz q more")

	done := make(chan struct{})
	go func() {
		WatchStdinShutdown(ctx, r, cancel)
		close(done)
	}()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected cancel to fire on reading 'q'")
	}
	<-done
}

func TestUnknownEventClassIsNonFatal(t *testing.T) {
	dir := t.TempDir()
	writeShaRule(t, dir, "eicar", []byte("marker"))
	store, err := sigstore.LoadFromDir(dir)
	if err != nil {
		t.Fatalf("LoadFromDir: %v", err)
	}
	sc := scanner.New(store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sc.Run(ctx) }()

	exec := &recordingExecutor{}
	cc := kernelchan.NewChanConn(4)
	openFile := func(path string) (scanner.ReadSeekerAt, int64, error) {
		return nil, 0, fmt.Errorf("not used")
	}
	loop := New(cc, store, sc, exec, openFile)

	// An unrecognized 4-byte class tag, with no payload.
	cc.Inbound <- []byte{0xff, 0xff, 0xff, 0xff}

	runCtx, runCancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer runCancel()
	err = loop.Run(runCtx)
	if err != nil {
		t.Fatalf("unexpected error from an unknown event class: %v", err)
	}
}
