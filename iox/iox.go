// Package iox provides I/O helpers for stream bodies and resource cleanup.
package iox

import "io"

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(resp.Body)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup and context.AfterFunc registration:
//
//	stop := context.AfterFunc(ctx, iox.CloseFunc(body))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}
