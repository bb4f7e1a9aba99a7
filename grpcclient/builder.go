package grpcclient

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tienchanhtri/aoxam-web/oauth2client"
)

// Builder provides a fluent interface for constructing gRPC connections to the API host
// that authenticate as a session.
type Builder struct {
	address string

	tokens *oauth2client.TokenManager
	eager  oauth2client.Eagerness

	// TLS configuration
	insecure      bool
	tlsCAFile     string
	tlsServerName string

	dialOpts []grpc.DialOption
}

// NewBuilder creates a new gRPC client builder.
func NewBuilder() *Builder {
	return &Builder{eager: oauth2client.OnRejection}
}

// WithAddress sets the server address (e.g., "api.aoxam.example.com:443").
func (b *Builder) WithAddress(address string) *Builder {
	b.address = address
	return b
}

// WithTokenManager attaches the session's access token to every call. Unary calls rejected
// with codes.Unauthenticated are retried once after a refresh.
func (b *Builder) WithTokenManager(tm *oauth2client.TokenManager) *Builder {
	b.tokens = tm
	return b
}

// WithEagerness sets when tokens are refreshed before a call. Defaults to OnRejection.
func (b *Builder) WithEagerness(eager oauth2client.Eagerness) *Builder {
	b.eager = eager
	return b
}

// WithCA verifies the server against the PEM roots in caFile instead of the system roots.
// serverName overrides the name checked against the certificate when non-empty.
func (b *Builder) WithCA(caFile, serverName string) *Builder {
	b.tlsCAFile = caFile
	b.tlsServerName = serverName
	return b
}

// WithInsecure disables TLS. Meant for a local API host during development.
func (b *Builder) WithInsecure() *Builder {
	b.insecure = true
	return b
}

// WithDialOptions adds custom gRPC dial options.
// These options are applied after the authentication and TLS options.
func (b *Builder) WithDialOptions(opts ...grpc.DialOption) *Builder {
	b.dialOpts = append(b.dialOpts, opts...)
	return b
}

// Build constructs the gRPC client connection. No connection is attempted until the first
// call.
func (b *Builder) Build() (*grpc.ClientConn, error) {
	if b.address == "" {
		return nil, errors.New("grpcclient: server address is required")
	}
	if b.insecure && b.tlsCAFile != "" {
		return nil, errors.New("grpcclient: WithInsecure and WithCA are mutually exclusive")
	}

	var opts []grpc.DialOption

	if b.tokens != nil {
		opts = append(opts,
			grpc.WithUnaryInterceptor(b.tokens.UnaryClientInterceptor(b.eager)),
			grpc.WithStreamInterceptor(b.tokens.StreamClientInterceptor(b.eager)),
		)
	}

	if b.insecure {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		tlsConfig, err := b.buildTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("grpcclient: TLS config failed: %w", err)
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	}

	opts = append(opts, b.dialOpts...)

	conn, err := grpc.NewClient(b.address, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpcclient: dial failed: %w", err)
	}

	return conn, nil
}

func (b *Builder) buildTLSConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: b.tlsServerName,
	}

	if b.tlsCAFile != "" {
		caCert, err := os.ReadFile(b.tlsCAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}

		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = certPool
	}

	return tlsConfig, nil
}
