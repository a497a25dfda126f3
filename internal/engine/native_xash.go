//go:build xash && cgo

package engine

/*
#cgo LDFLAGS: -L${SRCDIR}/../../lib -lxash -lm
#include <errno.h>
#include <stdlib.h>
#include "engine.h"

void netshim_set_errno(int err) {
	errno = err;
}

static void netshim_change_game(const char *progname) {}

static int netshim_host_main(int argc, char **argv, const char *progname, int change) {
	return Host_Main(argc, argv, progname, change, netshim_change_game);
}

static void netshim_install(void) {
	RegisterRecvFromCallback(Recvfrom);
	RegisterSendToCallback(Sendto);
}
*/
import "C"

import (
	"sync"
	"unsafe"
)

var installOnce sync.Once

type native struct{}

// Native returns the linked engine and points its socket calls at the
// exported Recvfrom/Sendto, which dispatch through registry.Default.
func Native() (Engine, error) {
	installOnce.Do(func() { C.netshim_install() })
	return native{}, nil
}

func (native) LauncherMain(args []string) int {
	argc, argv, free := cArgs(args)
	defer free()
	return int(C.Launcher_Main(argc, argv))
}

func (native) HostMain(args []string, progname string, changeGame bool) int {
	argc, argv, free := cArgs(args)
	defer free()

	cProg := C.CString(progname)
	defer C.free(unsafe.Pointer(cProg))

	change := C.int(0)
	if changeGame {
		change = 1
	}
	return int(C.netshim_host_main(argc, argv, cProg, change))
}

// cArgs builds a NULL-terminated C argv. free releases every string.
func cArgs(args []string) (C.int, **C.char, func()) {
	argv := make([]*C.char, len(args)+1)
	for i, a := range args {
		argv[i] = C.CString(a)
	}
	argv[len(args)] = nil

	// The slice lives in Go memory; C only reads it during the call.
	free := func() {
		for _, p := range argv {
			if p != nil {
				C.free(unsafe.Pointer(p))
			}
		}
	}
	return C.int(len(args)), &argv[0], free
}
