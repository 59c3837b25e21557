package memory

// Names under which memory components are published on the application
// context.
const (
	ServiceBuffer       = "memory.buffer"
	ServiceBufferConfig = "memory.buffer_config"
	ServiceSnapshots    = "memory.snapshots"
	ServiceIndex        = "memory.index"
	ServiceFacade       = "memory.facade"
)
