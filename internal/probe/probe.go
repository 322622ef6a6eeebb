// Package probe checks that a camera endpoint accepts connections and answers
// a minimal RTSP OPTIONS request.
package probe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"time"

	"github.com/smazurov/camview/internal/endpoint"
	"github.com/smazurov/camview/internal/logging"
)

// DefaultTimeout bounds the connection attempt and the handshake.
const DefaultTimeout = 5 * time.Second

// Result classifies a probe attempt.
type Result string

// Probe results.
const (
	ResultSuccess          Result = "success"
	ResultInvalidAddress   Result = "invalid_address"
	ResultConnectionFailed Result = "connection_failed"
)

// Outcome is the result of a single probe. Message is only set for
// ResultConnectionFailed and carries the transport error text.
type Outcome struct {
	Result  Result `json:"result" enum:"success,invalid_address,connection_failed" doc:"Probe classification"`
	Message string `json:"message,omitempty" doc:"Underlying transport error"`
}

// Success reports whether the endpoint answered.
func (o Outcome) Success() bool { return o.Result == ResultSuccess }

func (o Outcome) String() string {
	if o.Message != "" {
		return fmt.Sprintf("%s: %s", o.Result, o.Message)
	}
	return string(o.Result)
}

// DialFunc opens a transport connection.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Prober performs reachability checks. The zero value is not usable; use New.
type Prober struct {
	timeout time.Duration
	dial    DialFunc
	logger  *slog.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithDialer replaces the network dialer.
func WithDialer(dial DialFunc) Option {
	return func(p *Prober) {
		p.dial = dial
	}
}

// New creates a Prober.
func New(opts ...Option) *Prober {
	p := &Prober{
		timeout: DefaultTimeout,
		logger:  logging.GetLogger("probe"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.dial == nil {
		d := &net.Dialer{Timeout: p.timeout}
		p.dial = d.DialContext
	}
	return p
}

// Timeout returns the configured probe timeout.
func (p *Prober) Timeout() time.Duration {
	return p.timeout
}

// ProbeAsync runs Probe on its own goroutine and delivers exactly one outcome.
func (p *Prober) ProbeAsync(ctx context.Context, rawAddress string) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		ch <- p.Probe(ctx, rawAddress)
	}()
	return ch
}

// Probe normalizes rawAddress, connects to it and sends one OPTIONS request.
// It blocks for at most the configured timeout and never retries.
func (p *Prober) Probe(ctx context.Context, rawAddress string) Outcome {
	start := time.Now()
	outcome := p.probe(ctx, rawAddress)
	observe(outcome, time.Since(start))
	return outcome
}

func (p *Prober) probe(ctx context.Context, rawAddress string) Outcome {
	target, err := endpoint.Normalize(rawAddress)
	if err != nil {
		p.logger.Debug("Probe rejected address", "address", rawAddress)
		return Outcome{Result: ResultInvalidAddress}
	}

	logger := p.logger.With("host", target.Host, "port", target.Port)
	logger.Debug("Probing RTSP endpoint")

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dial(ctx, "tcp", target.Address())
	if err != nil {
		logger.Info("Probe connection failed", "error", err)
		return Outcome{Result: ResultConnectionFailed, Message: err.Error()}
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return Outcome{Result: ResultConnectionFailed, Message: err.Error()}
	}

	lines, err := handshake(conn, endpoint.Redact(target.URI))
	if err != nil {
		logger.Info("Probe handshake failed", "error", err)
		return Outcome{Result: ResultConnectionFailed, Message: err.Error()}
	}

	logger.Debug("Probe succeeded", "response_lines", len(lines))
	return Outcome{Result: ResultSuccess}
}

// handshake writes an OPTIONS request and collects response lines until a
// blank line or end of stream. The response content is not validated.
func handshake(conn net.Conn, uri string) ([]string, error) {
	request := fmt.Sprintf("OPTIONS %s RTSP/1.0\r\nCSeq: 1\r\n\r\n", uri)
	if _, err := io.WriteString(conn, request); err != nil {
		return nil, err
	}

	reader := textproto.NewReader(bufio.NewReader(conn))
	var lines []string
	for {
		line, err := reader.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return lines, nil
			}
			return lines, err
		}
		if line == "" {
			return lines, nil
		}
		lines = append(lines, line)
	}
}
