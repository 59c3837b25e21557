package core

// ModuleID uniquely identifies a module, using a dotted namespace
// ("memory.sqlite", "provider.anthropic").
type ModuleID string

// Namespace returns the part of the ID before the first dot.
func (id ModuleID) Namespace() string {
	for i := 0; i < len(id); i++ {
		if id[i] == '.' {
			return string(id[:i])
		}
	}
	return string(id)
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID ModuleID

	// New returns a fresh, unconfigured instance of the module.
	New func() Module
}

// Module is the minimal interface every module implements. Lifecycle
// behaviour is opted into through the interfaces in lifecycle.go.
type Module interface {
	ModuleInfo() ModuleInfo
}
