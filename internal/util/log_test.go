package util

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
)

// lockedBuffer is a bytes.Buffer safe for concurrent writers
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func restoreLogging(t *testing.T) {
	t.Cleanup(func() {
		SetLogOutput(os.Stderr)
		SetColors(true)
		SetLogLevel(LevelInfo)
	})
}

func TestSetLogOutput(t *testing.T) {
	restoreLogging(t)
	var out lockedBuffer
	SetColors(false)
	SetLogOutput(&out)

	InfoLog("imported %d spectra", 3)
	DebugLog("hidden at info level")

	got := out.String()
	if !strings.Contains(got, "imported 3 spectra") {
		t.Errorf("expected info message, got %q", got)
	}
	if strings.Contains(got, "hidden") {
		t.Errorf("debug message leaked at info level: %q", got)
	}
}

func TestSetLogLevelKeepsOutput(t *testing.T) {
	restoreLogging(t)
	var out lockedBuffer
	SetColors(false)
	SetLogOutput(&out)

	SetLogLevel(LevelError)
	WarnLog("dropped")
	ErrorLog("kept")
	if !IsQuiet() {
		t.Error("expected quiet mode at error level")
	}

	SetColors(false)
	ErrorLog("still here")

	got := out.String()
	if strings.Contains(got, "dropped") {
		t.Errorf("warning shown at error level: %q", got)
	}
	for _, want := range []string{"kept", "still here"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q: %q", want, got)
		}
	}
}

func TestLoggingWhileReconfiguring(t *testing.T) {
	restoreLogging(t)
	var out lockedBuffer
	SetLogOutput(&out)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				ErrorLog("worker %d line %d", i, j)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				SetColors(j%2 == 0)
				SetLogLevel(LogLevel(j % 4))
			}
		}(i)
	}
	wg.Wait()

	// Error level passes every threshold, so no line may be lost
	got := out.String()
	for i := 0; i < 4; i++ {
		if want := fmt.Sprintf("worker %d line 49", i); !strings.Contains(got, want) {
			t.Errorf("output missing %q", want)
		}
	}
}
