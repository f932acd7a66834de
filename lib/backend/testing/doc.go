// Package testing provides the standardised conformance tests for
// implementations of the backend.IBackend interface.
//
// Example usage:
//
//	func Test(t *testing.T) {
//		betesting.RunBackendTests(t, "MyBackend", func() (backend.IBackend, error) {
//			return NewMyBackend()
//		})
//	}
package testing
