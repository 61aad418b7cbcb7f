//go:build !linux

package volumes

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
)

// Monitor is only implemented on Linux.
type Monitor struct{}

func NewMonitor(*Identifier, func(ctx context.Context)) *Monitor {
	return &Monitor{}
}

func (*Monitor) Start(context.Context) error {
	return errors.Errorf("device monitoring is not supported on %s", runtime.GOOS)
}

func (*Monitor) Stop() {}
