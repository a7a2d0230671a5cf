// Package require re-exports github.com/alecthomas/assert checks, which
// already stop the test on failure, and adds ErrorIs which assert lacks.
package require

import (
	"errors"
	"fmt"

	"github.com/alecthomas/assert"
)

// TestingT is an interface wrapper around *testing.T
type TestingT interface {
	Errorf(format string, args ...interface{})
	FailNow()
}

type tHelper interface {
	Helper()
}

func helper(t TestingT) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
}

// NoError asserts that a function returned no error (i.e. `nil`).
//
//	s, err := OpenStore(dir)
//	require.NoError(t, err)
func NoError(t TestingT, err error, msgAndArgs ...interface{}) {
	helper(t)
	assert.NoError(t, err, msgAndArgs...)
}

// ErrorIs asserts that errors.Is(err, target) is true.
//
//	_, err := s.FindByID(5)
//	require.ErrorIs(t, err, capstore.ErrNotFound)
func ErrorIs(t TestingT, err error, target error, msgAndArgs ...interface{}) {
	helper(t)
	if errors.Is(err, target) {
		return
	}
	msg := ""
	if len(msgAndArgs) > 0 {
		if format, ok := msgAndArgs[0].(string); ok {
			msg = ", " + fmt.Sprintf(format, msgAndArgs[1:]...)
		}
	}
	t.Errorf("expected error matching '%v', got '%v'%s", target, err, msg)
	t.FailNow()
}

// Equal asserts that two objects are equal.
func Equal(t TestingT, expected interface{}, actual interface{}, msgAndArgs ...interface{}) {
	helper(t)
	assert.Equal(t, expected, actual, msgAndArgs...)
}

// Len asserts that the specified object has specific length.
func Len(t TestingT, object interface{}, length int, msgAndArgs ...interface{}) {
	helper(t)
	assert.Len(t, object, length, msgAndArgs...)
}

// True asserts that the specified value is true.
func True(t TestingT, value bool, msgAndArgs ...interface{}) {
	helper(t)
	assert.True(t, value, msgAndArgs...)
}
