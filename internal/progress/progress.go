// Package progress renders byte-level progress bars. Every helper
// tolerates a nil container or bar, so callers wire bars in and quiet
// mode just passes nil through.
package progress

import (
	"io"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// NewContainer returns a bar container, or nil when quiet; every other
// helper accepts the nil.
func NewContainer(quiet bool) *mpb.Progress {
	if quiet {
		return nil
	}
	return mpb.New(mpb.WithWidth(64))
}

// Wait flushes and stops the container.
func Wait(p *mpb.Progress) {
	if p != nil {
		p.Wait()
	}
}

// AddTransferBar adds an indeterminate byte-counter bar.
func AddTransferBar(p *mpb.Progress, name string) *mpb.Bar {
	if p == nil {
		return nil
	}
	return p.AddBar(0,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1}),
			decor.CountersKibiByte("% .2f / % .2f"),
		),
		mpb.AppendDecorators(
			decor.OnComplete(decor.Name(" [DONE]"), " [DONE]"),
		),
	)
}

// AddSizedBar adds a percentage bar for a known total.
func AddSizedBar(p *mpb.Progress, name string, total int64) *mpb.Bar {
	if p == nil {
		return nil
	}
	return p.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1}),
			decor.Percentage(),
		),
		mpb.AppendDecorators(
			decor.OnComplete(decor.CountersKibiByte("% .2f / % .2f"), "DONE"),
		),
	)
}

// Complete fills and finishes an indeterminate bar.
func Complete(bar *mpb.Bar) {
	if bar != nil {
		bar.SetTotal(-1, true)
	}
}

// Abort drops a bar without completing it.
func Abort(bar *mpb.Bar) {
	if bar != nil {
		bar.Abort(true)
	}
}

// Writer counts bytes written through it into bar.
type Writer struct {
	w   io.Writer
	bar *mpb.Bar
}

func NewWriter(w io.Writer, bar *mpb.Bar) *Writer {
	return &Writer{w: w, bar: bar}
}

func (pw *Writer) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	if n > 0 && pw.bar != nil {
		pw.bar.IncrBy(n)
	}
	return n, err
}

// Reader counts bytes read through it into bar.
type Reader struct {
	r   io.Reader
	bar *mpb.Bar
}

func NewReader(r io.Reader, bar *mpb.Bar) *Reader {
	return &Reader{r: r, bar: bar}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 && pr.bar != nil {
		pr.bar.IncrBy(n)
	}
	return n, err
}

// ByteCounter counts bytes without a UI bar.
type ByteCounter struct {
	Count int64
}

func (bc *ByteCounter) Write(p []byte) (int, error) {
	n := len(p)
	bc.Count += int64(n)
	return n, nil
}
