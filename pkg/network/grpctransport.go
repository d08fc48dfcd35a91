package network

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cuemby/holo/pkg/log"
)

// grpcServiceName and grpcStreamMethod name the single bidirectional
// streaming RPC every conductor speaks: no .proto/protoc step is
// available, so the RPC is described directly as a grpc.ServiceDesc
// rather than through generated stubs, carrying Envelope values through
// a plain JSON codec instead of protobuf wire encoding.
const (
	grpcServiceName = "holo.network.NetworkService"
	grpcStreamName  = "Stream"
	grpcFullMethod  = "/" + grpcServiceName + "/" + grpcStreamName
)

// TLSConfig names the certificate/key/CA files a grpcTransport loads
// for mTLS, grounded on the teacher's server.go/client.go TLS setup but
// reading paths directly rather than through a cluster-wide cert-dir
// convention: the conductor config's network section names the files
// explicitly instead of deriving a directory from a node id.
type TLSConfig struct {
	CertFile string
	KeyFile  string
	CAFile   string
	Insecure bool // skip TLS entirely, for loopback/dev use
}

func (c TLSConfig) serverCreds() (credentials.TransportCredentials, error) {
	if c.Insecure {
		return insecure.NewCredentials(), nil
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("network: load server cert: %w", err)
	}
	pool, err := loadCAPool(c.CAFile)
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS12,
	}), nil
}

func (c TLSConfig) clientCreds() (credentials.TransportCredentials, error) {
	if c.Insecure {
		return insecure.NewCredentials(), nil
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("network: load client cert: %w", err)
	}
	pool, err := loadCAPool(c.CAFile)
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	}), nil
}

func loadCAPool(caFile string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("network: read ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("network: parse ca file %s", caFile)
	}
	return pool, nil
}

// rawStream is the common surface of grpc.ClientStream and
// grpc.ServerStream that grpcTransport actually needs; neither
// interface alone covers both directions, so grpcTransport is written
// against this narrower one instead.
type rawStream interface {
	SendMsg(m interface{}) error
	RecvMsg(m interface{}) error
}

// grpcTransport is a Transport backed by one bidirectional gRPC stream.
// It is symmetric: the same type wraps either a server-accepted stream
// or a client-dialed one, since both sides just need SendMsg/RecvMsg.
type grpcTransport struct {
	stream rawStream

	mu     sync.Mutex
	closed bool
	closer func() error

	in chan Envelope
}

func newGRPCTransport(stream rawStream, closer func() error) *grpcTransport {
	t := &grpcTransport{
		stream: stream,
		closer: closer,
		in:     make(chan Envelope, transportQueueSize),
	}
	go t.pump()
	return t
}

func (t *grpcTransport) pump() {
	defer close(t.in)
	for {
		var env Envelope
		if err := t.stream.RecvMsg(&env); err != nil {
			log.WithComponent("network").Debug().Err(err).Msg("grpc transport: recv loop ended")
			return
		}
		select {
		case t.in <- env:
		default:
			log.WithComponent("network").Warn().
				Str("kind", string(env.Kind)).
				Msg("grpc transport queue full, dropping envelope")
		}
	}
}

func (t *grpcTransport) Send(ctx context.Context, e Envelope) error {
	return t.stream.SendMsg(&e)
}

func (t *grpcTransport) Recv() <-chan Envelope {
	return t.in
}

func (t *grpcTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.closer != nil {
		return t.closer()
	}
	return nil
}

// envelopeCodec marshals Envelope values as JSON instead of protobuf,
// so the stream never needs generated message types.
type envelopeCodec struct{}

func (envelopeCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (envelopeCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (envelopeCodec) Name() string                               { return "json" }

var networkStreamDesc = grpc.StreamDesc{
	StreamName:    grpcStreamName,
	ServerStreams: true,
	ClientStreams: true,
}

// grpcAccept is the handler registered against the grpc.Server; it
// turns one incoming bidi stream into a Transport and hands it to
// onConnect (pkg/conductor makes it the external route of every DNA
// space's mesh).
func grpcAccept(onConnect func(Transport)) func(interface{}, grpc.ServerStream) error {
	return func(_ interface{}, stream grpc.ServerStream) error {
		done := make(chan struct{})
		t := newGRPCTransport(stream, func() error { close(done); return nil })
		onConnect(t)
		<-done
		return nil
	}
}

// NewGRPCServer returns a gRPC server with the network stream service
// registered, listening for peer connections under tlsCfg. Call Serve
// on the returned *grpc.Server with a net.Listener.
func NewGRPCServer(tlsCfg TLSConfig, onConnect func(Transport)) (*grpc.Server, error) {
	creds, err := tlsCfg.serverCreds()
	if err != nil {
		return nil, err
	}
	srv := grpc.NewServer(grpc.Creds(creds), grpc.ForceServerCodec(envelopeCodec{}))
	desc := grpc.ServiceDesc{
		ServiceName: grpcServiceName,
		HandlerType: (*interface{})(nil),
		Streams: []grpc.StreamDesc{{
			StreamName:    grpcStreamName,
			Handler:       grpcAccept(onConnect),
			ServerStreams: true,
			ClientStreams: true,
		}},
	}
	srv.RegisterService(&desc, nil)
	return srv, nil
}

// DialGRPC opens a bidirectional stream to addr and returns it as a
// Transport.
func DialGRPC(ctx context.Context, addr string, tlsCfg TLSConfig) (Transport, error) {
	creds, err := tlsCfg.clientCreds()
	if err != nil {
		return nil, err
	}
	conn, err := grpc.DialContext(ctx, addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithBlock(),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(envelopeCodec{})))
	if err != nil {
		return nil, fmt.Errorf("network: dial %s: %w", addr, err)
	}
	stream, err := conn.NewStream(ctx, &networkStreamDesc, grpcFullMethod)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("network: open stream: %w", err)
	}
	return newGRPCTransport(stream, conn.Close), nil
}

// Listen is a small net.Listener convenience wrapper so conductor code
// does not need to import "net" just to call NewGRPCServer.
func Listen(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
