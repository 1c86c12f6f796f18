package wsgateway

import "go.uber.org/fx"

// Module provides a Hub bound to the Hubber interface for downstream
// consumers (cmd/fsmrund's lifecycle hook, a future WS handler), mirroring the
// teacher's registry.Module.
var Module = fx.Module("wsgateway",
	fx.Provide(
		NewHub,
		fx.Annotate(
			func(h *Hub) Hubber { return h },
			fx.As(new(Hubber)),
		),
	),
)
