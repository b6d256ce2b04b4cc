// Package testsupport provides in-process test doubles for the durable
// bus and credential store, shared by every package's tests that would
// otherwise need a real NATS/Redis deployment.
package testsupport

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// StartNATS boots an in-process JetStream-enabled NATS server for the
// duration of the test and returns a connected client. The server and
// connection are closed via t.Cleanup.
func StartNATS(t *testing.T) *nats.Conn {
	t.Helper()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("start in-process nats server: %v", err)
	}
	ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("in-process nats server did not become ready")
	}
	t.Cleanup(ns.Shutdown)

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("connect to in-process nats server: %v", err)
	}
	t.Cleanup(nc.Close)

	return nc
}
