//go:build !(linux && amd64)

package amd64

import (
	"fmt"
	"runtime"
)

type Func struct{}

func (Func) Call(uintptr) { panic("amd64.Func: " + ErrUnsupportedHost.Error()) }

func (Func) Entry() uintptr { return 0 }

func (Func) Size() int { return 0 }

func Prepare([]byte) (Func, func(), error) {
	return Func{}, nil, fmt.Errorf("%w (running on %s/%s)", ErrUnsupportedHost, runtime.GOOS, runtime.GOARCH)
}
