// Package klog is where the kernel itself records boot milestones and
// subsystem warnings — distinct from internal/console, which is the
// byte-oriented device user processes read and write. Backed by
// go-logr/stdr at boot, the way the teacher's uartPuts breadcrumbs are
// routed through one consistent sink instead of scattered fmt.Printf calls.
package klog

import (
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
)

// New returns a logr.Logger writing to stderr with microsecond timestamps,
// the kernel's single boot-time logging sink.
func New(name string) logr.Logger {
	std := log.New(os.Stderr, "", log.Lmicroseconds)
	return stdr.New(std).WithName(name)
}
