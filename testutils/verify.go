// Package testutils holds helpers shared by the tests of this module.
package testutils

import (
	"go.uber.org/goleak"
)

// VerifyTestMain runs a package's tests and then fails if any goroutine, such as a frame loop or
// a script runner, is still alive.
func VerifyTestMain(m goleak.TestingM, opts ...goleak.Option) {
	goleak.VerifyTestMain(m, opts...)
}
