package avr109

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// DefaultCommandTimeout bounds the wait for a command's response when neither
// the command nor the pipeline sets one.
const DefaultCommandTimeout = time.Second

// Completion describes when the response to a command is complete.
type Completion struct {
	length int
	none   bool
}

// FixedLength completes once exactly n bytes have been received.
func FixedLength(n int) Completion {
	return Completion{length: n}
}

// NoResponse completes as soon as the command has been written.
func NoResponse() Completion {
	return Completion{none: true}
}

// Length returns the number of response bytes expected.
func (c Completion) Length() int {
	if c.none {
		return 0
	}
	return c.length
}

func (c Completion) String() string {
	if c.none || c.length == 0 {
		return "no-response"
	}
	return fmt.Sprintf("fixed(%d)", c.length)
}

// Command is a single request to the bootloader together with the rule that
// decides when its response is complete.
type Command struct {
	Name    string
	Payload []byte
	Expect  Completion

	// Timeout overrides the pipeline default when non-zero
	Timeout time.Duration

	// Then receives the complete response. It may enqueue further commands;
	// returning an error aborts the run.
	Then func(resp []byte) error
}

// Pipeline sends queued commands one at a time over a byte stream, only
// dispatching the next command once the previous response is complete.
//
// A Pipeline is not safe for concurrent use.
type Pipeline struct {
	rw      io.ReadWriter
	clock   clockwork.Clock
	timeout time.Duration
	log     zerolog.Logger

	queue   []Command
	running bool
	buf     []byte
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineClock sets the clock used for response deadlines.
func WithPipelineClock(c clockwork.Clock) PipelineOption {
	return func(p *Pipeline) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithDefaultTimeout sets the response timeout for commands that do not set
// their own.
func WithDefaultTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithPipelineLogger sets the logger.
func WithPipelineLogger(l zerolog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.log = l
	}
}

// NewPipeline creates a pipeline over rw. Reads from rw are expected to
// return (0, nil) when no data arrives within the transport's read timeout.
func NewPipeline(rw io.ReadWriter, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		rw:      rw,
		clock:   clockwork.NewRealClock(),
		timeout: DefaultCommandTimeout,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enqueue appends commands to the queue.
func (p *Pipeline) Enqueue(cmds ...Command) {
	p.queue = append(p.queue, cmds...)
}

// Pending returns the number of queued commands not yet dispatched.
func (p *Pipeline) Pending() int {
	return len(p.queue)
}

// Running reports whether Run is currently draining the queue.
func (p *Pipeline) Running() bool {
	return p.running
}

// Run dispatches queued commands until the queue is empty. Commands enqueued
// by continuations are picked up by the same run. Calling Run while a run is
// already active does nothing.
//
// On any error the queue is cleared and the error returned.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.running {
		return nil
	}
	p.running = true
	defer func() { p.running = false }()

	for len(p.queue) > 0 {
		if err := ctx.Err(); err != nil {
			p.queue = nil
			return err
		}

		cmd := p.queue[0]
		p.queue[0] = Command{}
		p.queue = p.queue[1:]

		resp, err := p.dispatch(ctx, cmd)
		if err != nil {
			p.queue = nil
			return err
		}

		if cmd.Then != nil {
			if err := cmd.Then(resp); err != nil {
				p.queue = nil
				return fmt.Errorf("%s: %w", cmd.Name, err)
			}
		}
	}

	return nil
}

func (p *Pipeline) dispatch(ctx context.Context, cmd Command) ([]byte, error) {
	p.log.Debug().
		Str("cmd", cmd.Name).
		Int("bytes", len(cmd.Payload)).
		Stringer("expect", cmd.Expect).
		Msg("sending command")

	if err := p.write(cmd.Payload); err != nil {
		return nil, fmt.Errorf("%w: write %s: %w", ErrTransport, cmd.Name, err)
	}

	want := cmd.Expect.Length()
	if want == 0 {
		return nil, nil
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = p.timeout
	}
	deadline := p.clock.Now().Add(timeout)

	if cap(p.buf) < want {
		p.buf = make([]byte, want)
	}
	resp := make([]byte, 0, want)

	for len(resp) < want {
		// Never read past what this command needs.
		n, err := p.rw.Read(p.buf[:want-len(resp)])
		if n > 0 {
			resp = append(resp, p.buf[:n]...)
		}
		if err != nil {
			return resp, fmt.Errorf("%w: read %s: %w", ErrTransport, cmd.Name, err)
		}
		if len(resp) == want {
			break
		}
		if err := ctx.Err(); err != nil {
			return resp, err
		}
		if !p.clock.Now().Before(deadline) {
			return resp, &TimeoutError{
				Command:  cmd.Name,
				Timeout:  timeout,
				Expected: want,
				Partial:  resp,
			}
		}
	}

	p.log.Trace().Str("cmd", cmd.Name).Hex("resp", resp).Msg("response complete")
	return resp, nil
}

func (p *Pipeline) write(b []byte) error {
	for len(b) > 0 {
		n, err := p.rw.Write(b)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		b = b[n:]
	}
	return nil
}
