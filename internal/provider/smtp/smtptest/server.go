// Package smtptest provides an in-process SMTP relay over implicit TLS that
// records accepted messages, for exercising the SMTP provider end to end.
package smtptest

import (
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"sync"

	tlsutil "github.com/shineum/quote-intake/internal/tls"
)

// Message is one accepted mail transaction.
type Message struct {
	From string
	To   []string
	Data []byte
}

// Options configures the relay behaviour.
type Options struct {
	// Username and Password enable AUTH PLAIN. Empty disables AUTH.
	Username string
	Password string
	// RejectRecipient, when set, makes RCPT TO fail with 550 for matching addresses.
	RejectRecipient func(addr string) bool
}

// Server is a recording SMTP relay listening on 127.0.0.1.
type Server struct {
	opts     Options
	listener net.Listener
	cert     *tlsutil.SelfSigned
	auth     *authenticator

	wg       sync.WaitGroup
	mu       sync.Mutex
	messages []Message
	conns    int
}

// Start listens on a random loopback port with a fresh self-signed certificate.
func Start(opts Options) (*Server, error) {
	cert, err := tlsutil.GenerateSelfSigned("127.0.0.1")
	if err != nil {
		return nil, err
	}

	ln, err := tls.Listen("tcp", "127.0.0.1:0", cert.ServerConfig())
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:     opts,
		listener: ln,
		cert:     cert,
		auth:     &authenticator{username: opts.Username, password: opts.Password},
	}

	s.wg.Add(1)
	go s.serve()
	return s, nil
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				slog.Debug("smtptest accept error", "error", err)
			}
			return
		}

		s.mu.Lock()
		s.conns++
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			newSession(conn, s).handle()
		}()
	}
}

// Host returns the listener host.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.listener.Addr().String())
	return host
}

// Port returns the listener port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.listener.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

// ClientTLSConfig trusts the relay certificate.
func (s *Server) ClientTLSConfig() *tls.Config {
	return s.cert.ClientConfig()
}

// Messages returns a snapshot of the accepted messages.
func (s *Server) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Connections returns how many connections were accepted.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

// Close stops the listener and waits for sessions to finish.
func (s *Server) Close() error {
	err := s.listener.Close()
	s.wg.Wait()
	return err
}

func (s *Server) record(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}
