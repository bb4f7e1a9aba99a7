// Package credstore persists credential strings for two kinds of execution context and
// propagates changes between independent contexts.
//
// A *ServerRequest context is created per inbound HTTP request. Reads prefer a one-shot
// query-string override and fall back to the request's cookies; writes go to the response
// as Set-Cookie headers and are visible to later reads within the same request. Nothing
// outlives the request.
//
// The BrowserTab context is long-lived. Reads and writes touch a durable KV backend and,
// when configured, a cookie jar mirror, so code that only sees cookies and code that reads the
// durable store observe the same value. Every write or delete publishes the key name on a
// Broadcaster; every Store sharing that broadcaster re-reads the key and delivers the value
// to its Changes subscriptions.
//
// # Backends
//
//   - MemoryKV: in-process map, the default
//   - RedisKV: go-redis client, shared between processes
//   - KeyringKV: the operating system keychain
//   - GormKV: a gorm database table (SQLite via glebarez/sqlite in tests)
//
// Broadcasters:
//
//   - Hub: in-process fan-out; DefaultHub returns the process-wide instance
//   - RedisBroadcaster: Redis pub/sub
//
// # Quick Start
//
//	jar, _ := credstore.NewCookieJar()
//	store := credstore.New(credstore.NewMemoryKV(),
//	    credstore.WithCookieJar(jar, origin),
//	)
//
//	sub, err := store.Changes(ctx, credstore.KeyAccessToken)
//	if err != nil {
//	    return err
//	}
//	defer sub.Close()
//
//	for change := range sub.C() {
//	    fmt.Println(change.Value, change.Present)
//	}
//
// An empty stored string is read back as absent.
package credstore
