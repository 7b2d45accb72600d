package operator

// NodeID indexes into a plan's arena-allocated operator vector. Using
// indices instead of pointers sidesteps the cyclic-looking producer/consumer
// references between operators and pipes (see design notes: "cyclic
// references... model as NodeId indices into an arena-allocated vector
// owned by the plan").
type NodeID int

// InvalidNode marks an unresolved or absent node reference.
const InvalidNode NodeID = -1

// Pipe is a named directed edge between operators: exactly one producer,
// an ordered list of consumers.
type Pipe struct {
	Name      string
	Producer  NodeID
	Consumers []NodeID
}
