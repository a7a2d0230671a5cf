package require

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

type fakeT struct {
	msgs   []string
	failed bool
}

func (t *fakeT) Errorf(format string, args ...interface{}) {
	t.msgs = append(t.msgs, fmt.Sprintf(format, args...))
}

func (t *fakeT) FailNow() {
	t.failed = true
}

func TestErrorIs(t *testing.T) {
	errBase := errors.New("base")
	ft := &fakeT{}
	ErrorIs(ft, fmt.Errorf("%w: more", errBase), errBase)
	if ft.failed {
		t.Fatalf("unexpected failure: %v", ft.msgs)
	}

	ErrorIs(ft, errors.New("other"), errBase, "id %d", 5)
	if !ft.failed || len(ft.msgs) != 1 || !strings.HasSuffix(ft.msgs[0], ", id 5") {
		t.Fatalf("expected failure, got %v", ft.msgs)
	}
}

func TestFailNow(t *testing.T) {
	ft := &fakeT{}
	NoError(ft, nil)
	Equal(ft, 1, 1)
	True(ft, true)
	Len(ft, []int{1, 2}, 2)
	if ft.failed {
		t.Fatalf("unexpected failure: %v", ft.msgs)
	}
	NoError(ft, errors.New("boom"))
	if !ft.failed {
		t.Fatalf("expected failure")
	}
}
