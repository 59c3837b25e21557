package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// A module opts into each lifecycle step by implementing the matching
// interface. Loading runs Configure, Provision and Validate in that order;
// App.Start and App.Stop run the rest.

// Configurable receives the module's section of the configuration file.
// It is only called when the section exists.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner applies defaults and resolves services registered by modules
// loaded earlier.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator checks the provisioned settings. It must not have side effects.
type Validator interface {
	Validate() error
}

// Starter launches background work. Start must not block.
type Starter interface {
	Start() error
}

// Stopper releases what the module holds. Modules are stopped in reverse
// start order, and a module that was loaded but never started is stopped
// when loading fails later on.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader applies new settings while running. The context carries the new
// configuration; see AppContext.ModuleConfig. On error the module keeps its
// previous settings.
type Reloader interface {
	Reload(ctx *AppContext) error
}
