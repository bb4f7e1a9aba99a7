package oauth2client

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// bearer returns the token to send, or "" when the caller is anonymous.
func (tm *TokenManager) bearer(ctx context.Context, eager Eagerness) (string, error) {
	token, err := tm.RefreshTokenFlow(ctx, "", eager)
	if errors.Is(err, ErrNotAuthenticated) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("oauth2client: failed to get token: %w", err)
	}
	return token, nil
}

func withBearer(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

// UnaryClientInterceptor returns a gRPC unary client interceptor that adds the access
// token as "authorization: Bearer <token>". When the call fails with Unauthenticated, the
// rejected token is refreshed and the call is retried once with the new token.
//
// Calls without any stored credentials are sent without the header.
//
// Usage:
//
//	conn, err := grpc.NewClient(
//	    "server:9090",
//	    grpc.WithUnaryInterceptor(tm.UnaryClientInterceptor(oauth2client.WithinRemaining(time.Minute))),
//	)
func (tm *TokenManager) UnaryClientInterceptor(eager Eagerness) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		token, err := tm.bearer(ctx, eager)
		if err != nil {
			return err
		}

		err = invoker(withBearer(ctx, token), method, req, reply, cc, opts...)
		if status.Code(err) != codes.Unauthenticated || token == "" {
			return err
		}

		fresh, refreshErr := tm.RefreshTokenFlow(ctx, token, OnRejection)
		if refreshErr != nil || fresh == token {
			return err
		}
		return invoker(withBearer(ctx, fresh), method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor returns a gRPC stream client interceptor that adds the access
// token to the stream metadata. Streams are not retried.
func (tm *TokenManager) StreamClientInterceptor(eager Eagerness) grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		token, err := tm.bearer(ctx, eager)
		if err != nil {
			return nil, err
		}

		return streamer(withBearer(ctx, token), desc, cc, method, opts...)
	}
}
