// Package grpcclient builds gRPC connections to the API host that call on behalf of a
// session.
//
// Connections use TLS 1.2+ with system roots unless WithCA or WithInsecure says otherwise.
// WithTokenManager installs the session's unary and stream interceptors, which send the
// access token as a Bearer authorization header.
//
// # Quick Start
//
//	conn, err := grpcclient.NewBuilder().
//	    WithAddress("api.aoxam.example.com:443").
//	    WithTokenManager(registry.Browser()).
//	    WithEagerness(oauth2client.WithinRemaining(time.Minute)).
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//
//	client := searchpb.NewSearchServiceClient(conn)
package grpcclient
