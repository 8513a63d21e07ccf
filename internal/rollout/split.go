package rollout

import "hash/fnv"

// bucket maps a request ID onto [0,100) deterministically. The same
// requester lands in the same bucket for the whole soak, so canary exposure
// is consistent per caller and needs no coordination.
func bucket(requestID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(requestID))
	return int(h.Sum32() % 100)
}

// routeToCanary reports whether a request ID falls inside the canary slice.
func routeToCanary(requestID string, canaryPercent int) bool {
	if canaryPercent <= 0 {
		return false
	}
	if canaryPercent >= 100 {
		return true
	}
	return bucket(requestID) < canaryPercent
}
