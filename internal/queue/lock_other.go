//go:build !unix

package queue

// lockFile is a no-op where flock is unavailable. Processes sharing a
// queue file are then only serialized within one process.
func lockFile(string) (func(), error) {
	return func() {}, nil
}
