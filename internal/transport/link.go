package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"

	"Vigil/internal/logger"
)

const (
	// alpnProtocol is the ALPN protocol identifier for the oracle link.
	alpnProtocol = "vigil/1"

	// defaultRequestTimeout is the default timeout for Request calls.
	defaultRequestTimeout = 30 * time.Second
)

// Link is one QUIC connection between the node and the oracle.
// Requests (decryption submissions) use bidirectional streams;
// callbacks are pushed over unidirectional streams.
type Link struct {
	publicKey ed25519.PublicKey // publicKey is the remote peer's ed25519 key
	conn      *quic.Conn
	closed    atomic.Bool

	handlersMu sync.RWMutex
	onMessage  func([]byte)                 // onMessage handles pushed frames
	onRequest  func([]byte) ([]byte, error) // onRequest handles request/response frames

	onClose func(*Link)
}

// RemotePublicKey returns the remote peer's ed25519 public key.
func (l *Link) RemotePublicKey() ed25519.PublicKey {
	return l.publicKey
}

// OnMessage sets the handler for pushed frames. Must be set before Start.
func (l *Link) OnMessage(fn func([]byte)) {
	l.handlersMu.Lock()
	l.onMessage = fn
	l.handlersMu.Unlock()
}

// OnRequest sets the handler for request/response frames. Must be set
// before Start.
func (l *Link) OnRequest(fn func([]byte) ([]byte, error)) {
	l.handlersMu.Lock()
	l.onRequest = fn
	l.handlersMu.Unlock()
}

// Start begins accepting streams on the link.
func (l *Link) Start() {
	go l.acceptUniStreams()
	go l.acceptBidiStreams()
}

// Request sends a frame and waits for the response frame.
func (l *Link) Request(ctx context.Context, data []byte) ([]byte, error) {
	if l.closed.Load() {
		return nil, fmt.Errorf("link is closed")
	}

	stream, err := l.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("open stream:\n%w", err)
	}
	defer stream.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultRequestTimeout)
	}
	stream.SetDeadline(deadline)

	if err := writeFrame(stream, data); err != nil {
		return nil, fmt.Errorf("write request:\n%w", err)
	}

	response, err := readFrame(stream)
	if err != nil {
		return nil, fmt.Errorf("read response:\n%w", err)
	}

	return response, nil
}

// Send pushes a frame over a new unidirectional stream.
func (l *Link) Send(data []byte) error {
	if l.closed.Load() {
		return fmt.Errorf("link is closed")
	}

	stream, err := l.conn.OpenUniStreamSync(context.Background())
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}

	if err := writeFrame(stream, data); err != nil {
		stream.Close()
		return fmt.Errorf("write frame: %w", err)
	}

	return stream.Close()
}

// Close closes the link.
func (l *Link) Close() error {
	if l.closed.Swap(true) {
		return nil
	}

	if l.onClose != nil {
		l.onClose(l)
	}

	return l.conn.CloseWithError(0, "closed")
}

// acceptUniStreams receives pushed frames.
func (l *Link) acceptUniStreams() {
	for {
		stream, err := l.conn.AcceptUniStream(context.Background())
		if err != nil {
			l.Close()
			return
		}

		go func(s *quic.ReceiveStream) {
			data, err := readFrame(s)
			if err != nil {
				logger.Debug("stream read error", "error", err)
				return
			}

			l.handlersMu.RLock()
			fn := l.onMessage
			l.handlersMu.RUnlock()

			if fn != nil {
				fn(data)
			}
		}(stream)
	}
}

// acceptBidiStreams serves request/response frames.
func (l *Link) acceptBidiStreams() {
	for {
		stream, err := l.conn.AcceptStream(context.Background())
		if err != nil {
			return
		}

		go l.serveRequest(stream)
	}
}

// serveRequest reads one request frame, invokes the handler and writes
// the response frame.
func (l *Link) serveRequest(stream *quic.Stream) {
	defer stream.Close()

	data, err := readFrame(stream)
	if err != nil {
		return
	}

	l.handlersMu.RLock()
	fn := l.onRequest
	l.handlersMu.RUnlock()

	if fn == nil {
		return
	}

	response, err := fn(data)
	if err != nil {
		logger.Debug("request handler failed", "error", err)
		return
	}

	_ = writeFrame(stream, response)
}

// tlsConfigFor builds the mutual-auth TLS config for a key pair.
// Peer identity is checked via the embedded ed25519 key, not chains.
func tlsConfigFor(privateKey ed25519.PrivateKey) (*tls.Config, error) {
	cert, err := generateCertificate(privateKey)
	if err != nil {
		return nil, fmt.Errorf("generate certificate:\n%w", err)
	}

	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		ClientAuth:         tls.RequireAnyClientCert,
		InsecureSkipVerify: true, // identity verified via the embedded public key
		NextProtos:         []string{alpnProtocol},
	}, nil
}

// quicConfig returns the QUIC configuration for oracle links.
func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	}
}

// Dial connects to a remote listener and returns the link.
// Handlers should be set before calling Start.
func Dial(ctx context.Context, addr string, privateKey ed25519.PrivateKey) (*Link, error) {
	tlsConf, err := tlsConfigFor(privateKey)
	if err != nil {
		return nil, err
	}

	conn, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("dial:\n%w", err)
	}

	link, err := newLink(conn)
	if err != nil {
		conn.CloseWithError(1, "setup failed")
		return nil, err
	}

	return link, nil
}

// newLink wraps a QUIC connection, extracting the peer identity.
func newLink(conn *quic.Conn) (*Link, error) {
	pubKey, err := extractPublicKey(conn.ConnectionState().TLS)
	if err != nil {
		return nil, fmt.Errorf("extract public key:\n%w", err)
	}

	return &Link{
		publicKey: pubKey,
		conn:      conn,
	}, nil
}

// Server accepts incoming oracle links.
type Server struct {
	listener *quic.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	onConnect func(*Link)
}

// Listen starts a QUIC listener with the given identity key.
// onConnect is called for each accepted link before its streams are
// served, so handlers can be attached race-free.
func Listen(addr string, privateKey ed25519.PrivateKey, onConnect func(*Link)) (*Server, error) {
	tlsConf, err := tlsConfigFor(privateKey)
	if err != nil {
		return nil, err
	}

	listener, err := quic.ListenAddr(addr, tlsConf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("listen:\n%w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		listener:  listener,
		ctx:       ctx,
		cancel:    cancel,
		onConnect: onConnect,
	}

	s.wg.Add(1)
	go s.acceptLoop()

	return s, nil
}

// Addr returns the listener's address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close stops the listener.
func (s *Server) Close() error {
	s.cancel()
	err := s.listener.Close()
	s.wg.Wait()

	return err
}

// acceptLoop accepts incoming connections.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept(s.ctx)
		if err != nil {
			return // listener closed
		}

		link, err := newLink(conn)
		if err != nil {
			conn.CloseWithError(1, "setup failed")
			continue
		}

		if s.onConnect != nil {
			s.onConnect(link)
		}

		link.Start()
	}
}
