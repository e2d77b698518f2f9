package kiln

import (
	"log/slog"

	"go.uber.org/fx"
)

// Value group names.
const (
	ControllersGroup = "kiln.controllers"
	PluginsGroup     = "kiln.plugins"
	OptionsGroup     = "kiln.options"
)

// Module provides an initialised *Server built from the controllers, plugins
// and options in the kiln value groups. The server listens on app start and
// shuts down on app stop.
//
//	fx.New(
//	    kiln.Module,
//	    fx.Provide(kiln.AsController(users.NewController)),
//	    kiln.Supply(kiln.WithAddress(":3000")),
//	).Run()
var Module = fx.Module("kiln",
	fx.Provide(newServer),
)

type serverParams struct {
	fx.In

	Lifecycle   fx.Lifecycle
	Logger      *slog.Logger `optional:"true"`
	Controllers []Controller `group:"kiln.controllers"`
	Plugins     []Plugin     `group:"kiln.plugins"`
	Options     []Option     `group:"kiln.options"`
}

func newServer(p serverParams) (*Server, error) {
	opts := make([]Option, 0, len(p.Options)+3)
	if p.Logger != nil {
		opts = append(opts, WithLogger(p.Logger))
	}
	opts = append(opts, p.Options...)
	opts = append(opts, WithControllers(p.Controllers...), WithPlugins(p.Plugins...))

	srv := New(opts...)
	if err := srv.Initialise(); err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{
		OnStart: srv.Start,
		OnStop:  srv.Shutdown,
	})
	return srv, nil
}

// AsController annotates a constructor so its result joins the controllers group.
func AsController(ctor any) any {
	return fx.Annotate(ctor, fx.As(new(Controller)), fx.ResultTags(`group:"kiln.controllers"`))
}

// AsPlugin annotates a constructor so its result joins the plugins group.
func AsPlugin(ctor any) any {
	return fx.Annotate(ctor, fx.As(new(Plugin)), fx.ResultTags(`group:"kiln.plugins"`))
}

// Supply adds server options to the options group.
func Supply(opts ...Option) fx.Option {
	provides := make([]fx.Option, 0, len(opts))
	for _, opt := range opts {
		provides = append(provides, fx.Provide(fx.Annotate(
			func() Option { return opt },
			fx.ResultTags(`group:"kiln.options"`),
		)))
	}
	return fx.Options(provides...)
}
