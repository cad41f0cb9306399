// Package pgtool shells out to the native PostgreSQL client tools. One
// logical action per invocation, nothing retried. Tool output streams
// verbatim to the runner's sink so the console log stays clean; the
// last few KiB ride along on any error.
package pgtool

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/lupppig/pgpair/internal/config"
	apperrors "github.com/lupppig/pgpair/internal/errors"
)

const (
	BinDump     = "pg_dump"
	BinPsql     = "psql"
	BinCreateDB = "createdb"
	BinDropDB   = "dropdb"
)

// Bins lists every tool an operation may need. Doctor walks this.
func Bins() []string {
	return []string{BinDump, BinPsql, BinCreateDB, BinDropDB}
}

// tailLimit bounds how much captured output an error message carries.
const tailLimit = 4 << 10

type Runner struct {
	Conn config.Conn
	Sink io.Writer
}

func New(conn config.Conn, sink io.Writer) *Runner {
	if sink == nil {
		sink = io.Discard
	}
	return &Runner{Conn: conn, Sink: sink}
}

// connArgs are shared by all four tools.
func (r *Runner) connArgs() []string {
	return []string{"-U", r.Conn.User, "-h", r.Conn.Host, "-p", strconv.Itoa(r.Conn.Port)}
}

// env passes the password to the child only; it never appears in argv.
func (r *Runner) env() []string {
	env := os.Environ()
	if r.Conn.Password != "" {
		env = append(env, "PGPASSWORD="+r.Conn.Password)
	}
	return env
}

// Dump writes a plain-format dump of db to outPath.
func (r *Runner) Dump(ctx context.Context, db, outPath string) error {
	args := append(r.connArgs(), "-f", outPath, db)
	return r.run(ctx, "dump", BinDump, args)
}

// Apply feeds a plain dump file into an existing database.
func (r *Runner) Apply(ctx context.Context, db, dumpPath string) error {
	args := append(r.connArgs(), "-d", db, "-f", dumpPath)
	return r.run(ctx, "apply", BinPsql, args)
}

func (r *Runner) CreateDB(ctx context.Context, db string) error {
	args := append(r.connArgs(), db)
	return r.run(ctx, "create", BinCreateDB, args)
}

// DropDB removes a database; a missing one is not an error.
func (r *Runner) DropDB(ctx context.Context, db string) error {
	args := append([]string{"--if-exists"}, append(r.connArgs(), db)...)
	return r.run(ctx, "drop", BinDropDB, args)
}

func (r *Runner) run(ctx context.Context, step, bin string, args []string) error {
	if _, err := exec.LookPath(bin); err != nil {
		return apperrors.Wrap(err, apperrors.TypeTool,
			fmt.Sprintf("%s: %s not found", step, bin),
			"Install the PostgreSQL client tools and make sure they are on PATH.")
	}

	tail := newTailBuffer(tailLimit)
	out := io.MultiWriter(r.Sink, tail)

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = r.env()
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Run(); err != nil {
		return toolError(err, step, bin, tail)
	}
	return nil
}

// CopyDB streams `pg_dump source` straight into `psql -d target` and
// returns the number of bytes that crossed the pipe. Both processes run
// concurrently and both exit codes are checked; the transfer is pumped
// through the parent so the volume is known. Even a dump of an empty
// database emits header statements, so zero bytes means the producer
// never delivered anything.
func (r *Runner) CopyDB(ctx context.Context, source, target string) (int64, error) {
	for _, bin := range []string{BinDump, BinPsql} {
		if _, err := exec.LookPath(bin); err != nil {
			return 0, apperrors.Wrap(err, apperrors.TypeTool,
				fmt.Sprintf("copy: %s not found", bin),
				"Install the PostgreSQL client tools and make sure they are on PATH.")
		}
	}

	dumpTail := newTailBuffer(tailLimit)
	applyTail := newTailBuffer(tailLimit)

	dump := exec.CommandContext(ctx, BinDump, append(r.connArgs(), source)...)
	dump.Env = r.env()
	dump.Stderr = io.MultiWriter(r.Sink, dumpTail)

	apply := exec.CommandContext(ctx, BinPsql, append(r.connArgs(), "-d", target)...)
	apply.Env = r.env()
	apply.Stdout = r.Sink
	apply.Stderr = io.MultiWriter(r.Sink, applyTail)

	out, err := dump.StdoutPipe()
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.TypeInternal, "copy: failed to open dump pipe", "")
	}
	in, err := apply.StdinPipe()
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.TypeInternal, "copy: failed to open apply pipe", "")
	}

	if err := dump.Start(); err != nil {
		return 0, toolError(err, "copy", BinDump, dumpTail)
	}
	if err := apply.Start(); err != nil {
		dump.Process.Kill()
		dump.Wait()
		return 0, toolError(err, "copy", BinPsql, applyTail)
	}

	type pumpResult struct {
		n   int64
		err error
	}
	pumped := make(chan pumpResult, 1)
	go func() {
		n, err := io.Copy(in, out)
		in.Close()
		pumped <- pumpResult{n, err}
	}()

	// The pump must drain before Wait may close the dump pipe. A pump
	// error means the consumer went away; stop the producer or it
	// blocks forever on a full pipe.
	res := <-pumped
	if res.err != nil {
		dump.Process.Kill()
	}
	dumpErr := dump.Wait()
	applyErr := apply.Wait()

	switch {
	case applyErr != nil:
		return res.n, toolError(applyErr, "copy", BinPsql, applyTail)
	case dumpErr != nil:
		return res.n, toolError(dumpErr, "copy", BinDump, dumpTail)
	case res.err != nil:
		return res.n, apperrors.Wrap(res.err, apperrors.TypeInternal, "copy: stream pump failed", "")
	}
	return res.n, nil
}

// Version reports the first line of `bin --version`.
func Version(ctx context.Context, bin string) (string, error) {
	out, err := exec.CommandContext(ctx, bin, "--version").Output()
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return line, nil
}

func toolError(err error, step, bin string, tail *tailBuffer) error {
	msg := fmt.Sprintf("%s: %s exited abnormally", step, bin)
	if t := strings.TrimSpace(tail.String()); t != "" {
		msg += "\ntool output:\n" + t
	}
	return apperrors.Wrap(err, apperrors.TypeTool, msg, "See the operation log for the full tool output.")
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append([]byte(nil), t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
