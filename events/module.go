package events

import (
	"errors"

	"github.com/nats-io/nats.go"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"umbasa.net/seraph-mounts/logging"
	"umbasa.net/seraph-mounts/tracing"
)

var Module = fx.Module("events",
	fx.Provide(
		NewBus,
	),
)

type BusParams struct {
	fx.In

	Viper   *viper.Viper
	Nc      *nats.Conn `optional:"true"`
	Logger  *logging.Logger
	Tracing *tracing.Tracing
}

type BusResult struct {
	fx.Out

	Bus Bus
}

// NewBus selects the transport configured by events.transport ("local" or "nats").
func NewBus(p BusParams) (BusResult, error) {
	p.Viper.SetDefault("events.transport", "local")

	switch transport := p.Viper.GetString("events.transport"); transport {
	case "local":
		return BusResult{Bus: NewLocalBus()}, nil
	case "nats":
		if p.Nc == nil {
			return BusResult{}, errors.New("events.transport is nats but no NATS connection is available")
		}
		return BusResult{Bus: NewNatsBus(p.Nc, p.Logger, p.Tracing)}, nil
	default:
		return BusResult{}, errors.New("invalid events.transport: " + transport)
	}
}
