package core

import "sync"

// services is shared by an AppContext and every context derived from it,
// so a module can resolve what another module registered during Provision.
type services struct {
	mu    sync.RWMutex
	items map[string]any
}

func newServices() *services {
	return &services{items: make(map[string]any)}
}

// RegisterService publishes a value under name. A later registration with
// the same name replaces the earlier one.
func (ctx *AppContext) RegisterService(name string, svc any) {
	if ctx.services == nil {
		ctx.services = newServices()
	}
	ctx.services.mu.Lock()
	defer ctx.services.mu.Unlock()
	ctx.services.items[name] = svc
}

// GetService returns the value registered under name.
func (ctx *AppContext) GetService(name string) (any, bool) {
	if ctx.services == nil {
		return nil, false
	}
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	svc, ok := ctx.services.items[name]
	return svc, ok
}
