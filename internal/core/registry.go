package core

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// registry holds the modules compiled into the binary.
type registry struct {
	mu   sync.RWMutex
	byID map[ModuleID]ModuleInfo
}

var modules = &registry{byID: make(map[ModuleID]ModuleInfo)}

// RegisterModule adds a module to the registry. Call it from an init
// function; it panics on an empty ID, a nil constructor or an ID that is
// already taken.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	switch {
	case info.ID == "":
		panic("core: module ID must not be empty")
	case info.New == nil:
		panic(fmt.Sprintf("core: module %s has no constructor", info.ID))
	}

	modules.mu.Lock()
	defer modules.mu.Unlock()
	if _, taken := modules.byID[info.ID]; taken {
		panic(fmt.Sprintf("core: module %s registered twice", info.ID))
	}
	modules.byID[info.ID] = info
}

// GetModule looks up a registered module.
func GetModule(id string) (ModuleInfo, bool) {
	modules.mu.RLock()
	defer modules.mu.RUnlock()
	info, ok := modules.byID[ModuleID(id)]
	return info, ok
}

// GetModules lists registered modules sorted by ID. With namespaces given,
// only modules in one of them are listed.
func GetModules(namespaces ...string) []ModuleInfo {
	modules.mu.RLock()
	defer modules.mu.RUnlock()

	out := make([]ModuleInfo, 0, len(modules.byID))
	for id, info := range modules.byID {
		if len(namespaces) == 0 || slices.Contains(namespaces, id.Namespace()) {
			out = append(out, info)
		}
	}
	slices.SortFunc(out, func(a, b ModuleInfo) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return out
}

// resetRegistry empties the registry between tests.
func resetRegistry() {
	modules.mu.Lock()
	defer modules.mu.Unlock()
	clear(modules.byID)
}
