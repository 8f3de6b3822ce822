package kinectmotion

import "fmt"

// SelectTracked returns the single tracked body in bodies, or nil when no
// body is tracked. More than one tracked body fails with
// ErrMultipleTrackedBodies and no body is returned.
func SelectTracked(bodies []Body) (*Body, error) {
	var tracked *Body
	count := 0
	for i := range bodies {
		if !bodies[i].IsTracked {
			continue
		}
		count++
		if tracked == nil {
			tracked = &bodies[i]
		}
	}
	if count > 1 {
		return nil, fmt.Errorf("%w: %d bodies are tracked", ErrMultipleTrackedBodies, count)
	}
	return tracked, nil
}
