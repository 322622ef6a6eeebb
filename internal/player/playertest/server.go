// Package playertest provides an in-process RTSP camera for transport tests.
package playertest

import (
	"bufio"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
)

const sdp = "v=0\r\n" +
	"o=- 0 0 IN IP4 127.0.0.1\r\n" +
	"s=camera\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"t=0 0\r\n" +
	"m=video 0 RTP/AVP 96\r\n" +
	"a=rtpmap:96 H264/90000\r\n" +
	"a=control:trackID=0\r\n"

// Server answers DESCRIBE, SETUP, PLAY, PAUSE and TEARDOWN for a single H.264
// track. It never sends media.
type Server struct {
	// Presentation is the Range header returned by a PLAY that asked for no
	// range, e.g. "clock=20260101T000000Z-". Empty omits the header.
	Presentation string
	// RejectClock answers PLAY requests with an absolute clock= range with
	// 457 Invalid Range.
	RejectClock bool
	// DropFrom makes the n-th and later connections close right after reading
	// their first request. Zero serves every connection.
	DropFrom int

	ln net.Listener

	mu      sync.Mutex
	closed  bool
	conns   []net.Conn
	methods []string
	plays   []string
	wg      sync.WaitGroup
}

// Start listens on a loopback port and returns the stream URI. The server is
// shut down when the test ends.
func (s *Server) Start(t testing.TB) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s.ln = ln

	s.wg.Add(1)
	go s.accept()

	t.Cleanup(s.Close)
	return "rtsp://" + ln.Addr().String() + "/live"
}

// Close stops accepting and drops every open connection.
func (s *Server) Close() {
	_ = s.ln.Close()
	s.mu.Lock()
	s.closed = true
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Methods returns every request method received, in order.
func (s *Server) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.methods...)
}

// PlayRanges returns the Range header of every PLAY received, in order.
func (s *Server) PlayRanges() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.plays...)
}

// Connections returns how many connections were accepted.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) accept() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns = append(s.conns, conn)
		n := len(s.conns)
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(conn, n)
	}
}

func (s *Server) serve(conn net.Conn, n int) {
	defer s.wg.Done()
	defer conn.Close()

	r := textproto.NewReader(bufio.NewReader(conn))
	for {
		line, err := r.ReadLine()
		if err != nil {
			return
		}
		if line == "" {
			continue
		}
		header, err := r.ReadMIMEHeader()
		if err != nil {
			return
		}
		method, _, _ := strings.Cut(line, " ")
		s.record(method, header.Get("Range"))

		if s.DropFrom > 0 && n >= s.DropFrom {
			return
		}
		if err := s.reply(conn, method, header); err != nil || method == "TEARDOWN" {
			return
		}
	}
}

func (s *Server) record(method, rng string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods = append(s.methods, method)
	if method == "PLAY" {
		s.plays = append(s.plays, rng)
	}
}

func (s *Server) reply(conn net.Conn, method string, header textproto.MIMEHeader) error {
	cseq := header.Get("CSeq")
	switch method {
	case "DESCRIBE":
		return write(conn, "200 OK", cseq, []string{"Content-Type: application/sdp"}, sdp)
	case "SETUP":
		return write(conn, "200 OK", cseq, []string{
			"Transport: RTP/AVP/TCP;unicast;interleaved=0-1",
			"Session: 1;timeout=60",
		}, "")
	case "PLAY":
		rng := header.Get("Range")
		if s.RejectClock && strings.HasPrefix(rng, "clock=") {
			return write(conn, "457 Invalid Range", cseq, nil, "")
		}
		if rng == "" {
			rng = s.Presentation
		}
		headers := []string{"Session: 1"}
		if rng != "" {
			headers = append(headers, "Range: "+rng)
		}
		return write(conn, "200 OK", cseq, headers, "")
	default:
		return write(conn, "200 OK", cseq, []string{"Session: 1"}, "")
	}
}

func write(conn net.Conn, status, cseq string, headers []string, body string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "RTSP/1.0 %s\r\nCSeq: %s\r\n", status, cseq)
	for _, h := range headers {
		b.WriteString(h + "\r\n")
	}
	if body != "" {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	}
	b.WriteString("\r\n" + body)
	_, err := conn.Write([]byte(b.String()))
	return err
}
