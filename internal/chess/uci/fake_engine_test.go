package uci

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
)

// fakeEngine answers the handful of UCI commands the session sends.
type fakeEngine struct {
	cmdR *io.PipeReader
	outW *io.PipeWriter

	mu       sync.Mutex
	received []string
	position string
	// onGo returns the lines printed in reply to "go".
	onGo func(position string) []string
	// silent stops answering isready.
	silent bool
}

func startFakeEngine(t *testing.T, opt Options, onGo func(string) []string) (*Session, *fakeEngine) {
	t.Helper()
	cmdR, cmdW := io.Pipe()
	outR, outW := io.Pipe()
	fe := &fakeEngine{cmdR: cmdR, outW: outW, onGo: onGo}
	go fe.run()

	sess, err := newPipeSession(context.Background(), cmdW, outR, opt, nil)
	if err != nil {
		t.Fatalf("newPipeSession: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	return sess, fe
}

func (f *fakeEngine) run() {
	defer f.outW.Close()
	sc := bufio.NewScanner(f.cmdR)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		f.mu.Lock()
		f.received = append(f.received, line)
		silent := f.silent
		f.mu.Unlock()
		switch {
		case line == "uci":
			f.write("id name fake", "uciok")
		case line == "isready":
			if !silent {
				f.write("readyok")
			}
		case strings.HasPrefix(line, "position "):
			f.mu.Lock()
			f.position = line
			f.mu.Unlock()
		case strings.HasPrefix(line, "go"):
			f.mu.Lock()
			pos := f.position
			f.mu.Unlock()
			var out []string
			if f.onGo != nil {
				out = f.onGo(pos)
			}
			f.write(out...)
		}
	}
}

func (f *fakeEngine) write(lines ...string) {
	for _, l := range lines {
		if _, err := io.WriteString(f.outW, l+"\n"); err != nil {
			return
		}
	}
}

func (f *fakeEngine) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

func (f *fakeEngine) setSilent(v bool) {
	f.mu.Lock()
	f.silent = v
	f.mu.Unlock()
}

// crash stops the fake process: stdout ends and further writes fail.
func (f *fakeEngine) crash() {
	f.cmdR.Close()
	f.outW.Close()
}

func defaultTestOptions() Options {
	return Options{Threads: 1, HashMB: 16, MultiPV: 3}
}

func threeLines(string) []string {
	return []string{
		"info depth 1 multipv 1 score cp 35 pv e2e4 e7e5",
		"info depth 1 multipv 2 score cp 20 pv d2d4 d7d5",
		"info depth 1 multipv 3 score cp 10 pv g1f3",
		"info depth 2 multipv 1 score cp 40 pv e2e4 c7c5",
		"bestmove e2e4 ponder c7c5",
	}
}
