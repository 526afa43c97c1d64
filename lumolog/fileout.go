package lumolog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// fileOutputter appends leveled log lines to the daemon's log file in
// addition to whatever the wrapped outputter does with them. Lines are
// formatted as "YYYY-MM-DDTHH:MM:SS.mmmZ [LEVEL] message\n".
type fileOutputter struct {
	level  Level
	next   Outputter
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// NewFileOutputter opens (creating parent directories as needed)
// <workDir>/.disc/logs/server.log and returns an Outputter that appends
// every message it receives to that file, then forwards it to next so
// output is still also visible wherever next sends it (normally stderr,
// via the default gologOutputter). Level() reports next's level, since
// the file sink never filters independently of it.
func NewFileOutputter(workDir string, next Outputter) (Outputter, error) {
	dir := filepath.Join(workDir, ".disc", "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lumolog: creating log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "server.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lumolog: opening server.log: %w", err)
	}
	return &fileOutputter{level: next.Level(), next: next, w: f, closer: f}, nil
}

func (o *fileOutputter) Level() Level { return o.next.Level() }

func (o *fileOutputter) Output(calldepth int, level Level, s string) error {
	if o.next.Level() >= level {
		line := fmt.Sprintf("%s [%s] %s\n", timestamp(time.Now()), levelTag(level), s)
		o.mu.Lock()
		_, werr := io.WriteString(o.w, line)
		o.mu.Unlock()
		if werr != nil {
			return werr
		}
	}
	return o.next.Output(calldepth+1, level, s)
}

// Close releases the underlying log file. It is not part of the
// Outputter interface; callers that own a *fileOutputter (e.g. via
// NewFileOutputter during shutdown) may type-assert to call it.
func (o *fileOutputter) Close() error {
	return o.closer.Close()
}

func timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func levelTag(l Level) string {
	switch l {
	case Off:
		return "OFF"
	case Error:
		return "ERROR"
	case Info:
		return "INFO"
	case Debug:
		return "DEBUG"
	default:
		return l.String()
	}
}
