package events

import (
	"testing"

	"go.viam.com/fieldsim/testutils"
)

// TestMain fails the package's tests if any of them leaks a goroutine.
func TestMain(m *testing.M) {
	testutils.VerifyTestMain(m)
}
