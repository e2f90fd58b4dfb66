package messaging

import (
	"os"

	"github.com/nats-io/nats.go"
	"go.uber.org/fx"
)

var Module = fx.Module("messaging",
	fx.Provide(
		NewNats,
		NewJetStream,
	),
)

// NewNats connects to SERAPH_NATS_URL, or the NATS default URL if unset.
// The connection is drained when the application stops.
func NewNats(lc fx.Lifecycle) (*nats.Conn, error) {
	url := os.Getenv("SERAPH_NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}

	closeChan := make(chan bool)
	conn, err := nats.Connect(url, nats.ClosedHandler(func(*nats.Conn) {
		close(closeChan)
	}))

	if err == nil {
		lc.Append(fx.StopHook(func() {
			conn.Drain()
			<-closeChan
		}))
	}

	return conn, err
}
