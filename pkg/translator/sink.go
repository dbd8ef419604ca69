package translator

import (
	"bufio"
	"io"
)

// Sink receives the generated assembly. The bootstrap, when configured, is
// emitted before the first BeginModule.
type Sink interface {
	BeginModule(name string) error
	Emit(lines []string) error
}

// WriterSink writes one instruction per line to an io.Writer.
type WriterSink struct {
	w *bufio.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: bufio.NewWriter(w)}
}

func (s *WriterSink) BeginModule(string) error { return nil }

func (s *WriterSink) Emit(lines []string) error {
	for _, l := range lines {
		if _, err := s.w.WriteString(l); err != nil {
			return err
		}
		if err := s.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return nil
}

// Flush must be called once translation is done.
func (s *WriterSink) Flush() error {
	return s.w.Flush()
}

// Collector keeps everything in memory.
type Collector struct {
	Lines []string
	// Modules lists module names in emission order.
	Modules []string
	// Starts[i] is the index in Lines where Modules[i] begins.
	Starts []int
}

func (c *Collector) BeginModule(name string) error {
	c.Modules = append(c.Modules, name)
	c.Starts = append(c.Starts, len(c.Lines))
	return nil
}

func (c *Collector) Emit(lines []string) error {
	c.Lines = append(c.Lines, lines...)
	return nil
}

// Module returns the lines emitted for name, or nil if it was not emitted.
func (c *Collector) Module(name string) []string {
	for i, m := range c.Modules {
		if m != name {
			continue
		}
		end := len(c.Lines)
		if i+1 < len(c.Starts) {
			end = c.Starts[i+1]
		}
		return c.Lines[c.Starts[i]:end]
	}
	return nil
}
