// Package detectloop drives the online detection path: read framed
// messages off a kernel channel, dispatch file-creation events to the
// scanner and process/image/registry events to the behavioral matcher,
// and run remediation on a match. Shutdown is cooperative: a
// context.CancelFunc the foreground trips, which unblocks a pending
// kernel receive promptly instead of waiting out its next natural return.
package detectloop

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"time"

	"github.com/radkum/redr/cleaner"
	"github.com/radkum/redr/dcontext"
	"github.com/radkum/redr/event"
	"github.com/radkum/redr/kernelchan"
	"github.com/radkum/redr/redrmetrics"
	"github.com/radkum/redr/scanner"
	"github.com/radkum/redr/sigstore"
)

// defaultSendTimeout bounds a verdict reply to the kernel when the caller
// didn't configure one.
const defaultSendTimeout = 2 * time.Second

// Loop owns the channel, store and cleaner executor the event loop
// dispatches against.
type Loop struct {
	channel     kernelchan.Channel
	store       *sigstore.Store
	scan        *scanner.Scanner
	executor    cleaner.Executor
	openFile    func(path string) (scanner.ReadSeekerAt, int64, error)
	sendTimeout time.Duration
}

// New builds a Loop. openFile resolves a FileCreate event's path to a
// readable, seekable handle for the scanner; production callers pass
// os.Open wrapped to also report file size, tests pass a fake.
func New(channel kernelchan.Channel, store *sigstore.Store, scan *scanner.Scanner, executor cleaner.Executor, openFile func(path string) (scanner.ReadSeekerAt, int64, error)) *Loop {
	return &Loop{
		channel:     channel,
		store:       store,
		scan:        scan,
		executor:    executor,
		openFile:    openFile,
		sendTimeout: defaultSendTimeout,
	}
}

// SetSendTimeout bounds how long a verdict reply back to the kernel may
// block before it is abandoned.
func (l *Loop) SetSendTimeout(d time.Duration) {
	if d > 0 {
		l.sendTimeout = d
	}
}

// Run processes messages from the channel until ctx is canceled or the
// channel reports it is closed.
func (l *Loop) Run(ctx context.Context) error {
	logger := dcontext.GetLogger(ctx)

	for {
		frame, err := l.channel.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		ev, err := event.Decode(frame)
		if err != nil {
			logger.Warnf("detectloop: decode: %v", err)
			continue
		}

		redrmetrics.EventsProcessed.Inc()
		if err := l.dispatch(ctx, ev); err != nil {
			logger.Errorf("detectloop: dispatch %s: %v", ev.Class(), err)
		}
	}
}

func (l *Loop) dispatch(ctx context.Context, ev event.Event) error {
	switch e := ev.(type) {
	case event.FileCreate:
		return l.handleFileCreate(ctx, e)
	case event.ProcessCreate, event.ImageLoad, event.RegistrySetValue:
		return l.handleBehavioral(ev)
	default:
		return nil
	}
}

func (l *Loop) handleFileCreate(ctx context.Context, e event.FileCreate) error {
	file, size, err := l.openFile(e.Path)
	if err != nil {
		return err
	}

	result, err := l.scan.FileSubmit(ctx, e.Path, file, size)
	if err != nil {
		return err
	}

	verdict, ok := <-result
	if !ok {
		return nil
	}
	l.replyVerdict(ctx, verdict.Malicious)
	if verdict.Malicious {
		return l.executor.Execute(cleaner.File(verdict.Path))
	}
	return nil
}

// replyVerdict tells the minifilter whether the file it held a create for
// was malicious, with a bounded wait; the driver proceeds on its own once
// the wait expires, so a failed reply is logged, not escalated.
func (l *Loop) replyVerdict(ctx context.Context, malicious bool) {
	reply := make([]byte, 4)
	if malicious {
		binary.LittleEndian.PutUint32(reply, 1)
	}

	sendCtx, cancel := context.WithTimeout(ctx, l.sendTimeout)
	defer cancel()
	if err := l.channel.Send(sendCtx, reply); err != nil {
		dcontext.GetLogger(ctx).Warnf("detectloop: verdict reply: %v", err)
	}
}

func (l *Loop) handleBehavioral(ev event.Event) error {
	if _, ok := l.store.EvalEvents(ev.HashMembers()); !ok {
		return nil
	}

	pid, hasPid := pidOf(ev)
	if !hasPid {
		return nil
	}
	redrmetrics.Detections.Inc()
	return l.executor.Execute(cleaner.Process(pid))
}

func pidOf(ev event.Event) (uint32, bool) {
	switch e := ev.(type) {
	case event.ProcessCreate:
		return e.Pid, true
	case event.ImageLoad:
		return e.Pid, true
	case event.RegistrySetValue:
		return e.Pid, true
	default:
		return 0, false
	}
}

// WatchStdinShutdown reads single keystrokes from r and calls cancel the
// moment it sees 'q', the terminal-shutdown trigger for the foreground
// loop. It returns once r is exhausted or ctx is done.
func WatchStdinShutdown(ctx context.Context, r io.Reader, cancel context.CancelFunc) {
	reader := bufio.NewReader(r)
	for {
		if ctx.Err() != nil {
			return
		}
		b, err := reader.ReadByte()
		if err != nil {
			return
		}
		if b == 'q' {
			cancel()
			return
		}
	}
}
