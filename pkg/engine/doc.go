// Package engine is the composition root of the director. It loads the
// configuration, builds the blob store, the generation adapters, the stage
// completers and the coordinator, and exposes sessions and an EventBus to
// frontends.
package engine
