package stage

import "sync"

// JointCoordinator tracks stages that opted in to joint termination. The
// pipeline ends when every opted-in stage has declared itself done, provided
// at least one stage opted in (a pipeline with zero opt-ins never ends this
// way; --ignore-joint-termination disables the mechanism entirely).
type JointCoordinator struct {
	mu       sync.Mutex
	optedIn  int
	done     int
	ignore   bool
}

// NewJointCoordinator creates a coordinator. If ignore is true, ShouldEnd
// always reports false regardless of how many stages declare done.
func NewJointCoordinator(ignore bool) *JointCoordinator {
	return &JointCoordinator{ignore: ignore}
}

// OptIn registers one more stage participating in joint termination. Call
// once per opted-in stage, before the pipeline starts running.
func (c *JointCoordinator) OptIn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.optedIn++
}

// Terminate is called by a stage when it decides it is done. It must keep
// passing packets through after calling this.
func (c *JointCoordinator) Terminate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done++
}

// ShouldEnd reports whether every opted-in stage has declared done.
func (c *JointCoordinator) ShouldEnd() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ignore || c.optedIn == 0 {
		return false
	}
	return c.done >= c.optedIn
}
