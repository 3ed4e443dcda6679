package smtptest

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"
)

// Session states.
const (
	stateConnected = iota
	stateGreeted
	stateAuthOK
	stateMailFrom
	stateRcptTo
)

const idleTimeout = 10 * time.Second

type authenticator struct {
	username string
	password string
}

func (a *authenticator) enabled() bool {
	return a.username != "" && a.password != ""
}

// verifyPlain checks an AUTH PLAIN response: base64(authzid\0user\0pass).
func (a *authenticator) verifyPlain(encoded string) error {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return errors.New("invalid base64 encoding")
	}
	parts := strings.SplitN(string(decoded), "\x00", 3)
	if len(parts) != 3 {
		return errors.New("invalid AUTH PLAIN format")
	}
	if parts[1] != a.username || parts[2] != a.password {
		return errors.New("authentication failed")
	}
	return nil
}

type session struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	server *Server
	state  int

	mailFrom string
	rcptTo   []string
}

func newSession(conn net.Conn, server *Server) *session {
	return &session{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		server: server,
		state:  stateConnected,
	}
}

func (s *session) handle() {
	defer s.conn.Close()

	s.writeLine("220 localhost ESMTP smtptest")

	for {
		if err := s.conn.SetDeadline(time.Now().Add(idleTimeout)); err != nil {
			return
		}
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				slog.Debug("smtptest read error", "error", err)
			}
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		cmd, arg := parseCommand(line)
		if s.handleCommand(cmd, arg) {
			return
		}
	}
}

func (s *session) handleCommand(cmd, arg string) bool {
	switch cmd {
	case "EHLO", "HELO":
		s.state = stateGreeted
		s.writeLine("250-localhost Hello %s", arg)
		if s.server.auth.enabled() {
			s.writeLine("250-AUTH PLAIN")
		}
		s.writeLine("250 OK")
	case "AUTH":
		s.handleAuth(arg)
	case "MAIL":
		s.handleMail(arg)
	case "RCPT":
		s.handleRcpt(arg)
	case "DATA":
		s.handleData()
	case "RSET":
		s.reset()
		s.writeLine("250 OK")
	case "NOOP":
		s.writeLine("250 OK")
	case "QUIT":
		s.writeLine("221 Bye")
		return true
	default:
		s.writeLine("500 Unrecognized command")
	}
	return false
}

func (s *session) handleAuth(arg string) {
	if !s.server.auth.enabled() {
		s.writeLine("503 AUTH not available")
		return
	}
	parts := strings.SplitN(arg, " ", 2)
	if strings.ToUpper(parts[0]) != "PLAIN" {
		s.writeLine("504 Unrecognized authentication type")
		return
	}

	encoded := ""
	if len(parts) > 1 {
		encoded = parts[1]
	} else {
		s.writeLine("334")
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return
		}
		encoded = strings.TrimRight(line, "\r\n")
	}

	if err := s.server.auth.verifyPlain(encoded); err != nil {
		s.writeLine("535 Authentication failed")
		return
	}
	s.state = stateAuthOK
	s.writeLine("235 Authentication successful")
}

func (s *session) handleMail(arg string) {
	if s.server.auth.enabled() && s.state < stateAuthOK {
		s.writeLine("530 Authentication required")
		return
	}
	if s.state < stateGreeted {
		s.writeLine("503 Send EHLO/HELO first")
		return
	}
	if !strings.HasPrefix(strings.ToUpper(arg), "FROM:") {
		s.writeLine("501 Syntax: MAIL FROM:<address>")
		return
	}
	s.mailFrom = extractAddress(arg[5:])
	s.rcptTo = nil
	s.state = stateMailFrom
	s.writeLine("250 OK")
}

func (s *session) handleRcpt(arg string) {
	if s.state < stateMailFrom {
		s.writeLine("503 Send MAIL FROM first")
		return
	}
	if !strings.HasPrefix(strings.ToUpper(arg), "TO:") {
		s.writeLine("501 Syntax: RCPT TO:<address>")
		return
	}
	addr := extractAddress(arg[3:])
	if reject := s.server.opts.RejectRecipient; reject != nil && reject(addr) {
		s.writeLine("550 Mailbox unavailable")
		return
	}
	s.rcptTo = append(s.rcptTo, addr)
	s.state = stateRcptTo
	s.writeLine("250 OK")
}

func (s *session) handleData() {
	if s.state < stateRcptTo {
		s.writeLine("503 Send RCPT TO first")
		return
	}
	s.writeLine("354 Start mail input; end with <CRLF>.<CRLF>")

	var data strings.Builder
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return
		}
		if strings.TrimRight(line, "\r\n") == "." {
			break
		}
		if strings.HasPrefix(line, ".") {
			line = line[1:]
		}
		data.WriteString(line)
	}

	s.server.record(Message{
		From: s.mailFrom,
		To:   append([]string(nil), s.rcptTo...),
		Data: []byte(data.String()),
	})
	s.reset()
	s.writeLine("250 OK message queued")
}

func (s *session) reset() {
	s.mailFrom = ""
	s.rcptTo = nil
	if s.server.auth.enabled() && s.state >= stateAuthOK {
		s.state = stateAuthOK
	} else if s.state >= stateGreeted {
		s.state = stateGreeted
	}
}

func (s *session) writeLine(format string, args ...interface{}) {
	if _, err := s.writer.WriteString(fmt.Sprintf(format, args...) + "\r\n"); err != nil {
		return
	}
	s.writer.Flush()
}

func parseCommand(line string) (string, string) {
	parts := strings.SplitN(line, " ", 2)
	cmd := strings.ToUpper(parts[0])
	arg := ""
	if len(parts) > 1 {
		arg = parts[1]
	}
	return cmd, arg
}

// extractAddress handles both "<user@example.com> PARAM=x" and bare forms.
func extractAddress(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<") {
		end := strings.Index(s, ">")
		if end < 0 {
			return ""
		}
		return s[1:end]
	}
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}
