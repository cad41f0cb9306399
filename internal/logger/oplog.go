package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// OpLogPattern matches the files NewOperationLog creates.
const OpLogPattern = "*.log"

// OperationLog is the per-run diagnostics file. Tool output is streamed
// into it verbatim so the console log stays readable; the retention
// sweeper prunes old files by age.
type OperationLog struct {
	file *os.File
	path string
}

// NewOperationLog creates <dir>/<op>_<subject>_<timestamp>.log, creating
// dir if needed. A nil OperationLog is valid and discards all writes.
func NewOperationLog(dir, op, subject string) (*OperationLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir %s: %w", dir, err)
	}
	name := fmt.Sprintf("%s_%s_%s.log", op, subject, time.Now().Format("2006-01-02_15-04-05"))
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating operation log %s: %w", path, err)
	}
	return &OperationLog{file: f, path: path}, nil
}

func (o *OperationLog) Writer() io.Writer {
	if o == nil {
		return io.Discard
	}
	return o.file
}

func (o *OperationLog) Path() string {
	if o == nil {
		return ""
	}
	return o.path
}

// Printf writes a timestamped line to the log file only.
func (o *OperationLog) Printf(format string, args ...any) {
	if o == nil {
		return
	}
	fmt.Fprintf(o.file, "%s "+format+"\n", append([]any{time.Now().Format("2006/01/02 15:04:05")}, args...)...)
}

func (o *OperationLog) Close() error {
	if o == nil {
		return nil
	}
	return o.file.Close()
}
