//go:build darwin && cgo

package power

/*
#cgo LDFLAGS: -framework IOKit -framework CoreFoundation

#include <stdint.h>
#include <IOKit/pwr_mgt/IOPMLib.h>
#include <IOKit/IOMessage.h>
#include <CoreFoundation/CoreFoundation.h>

extern void goSystemPower(uintptr_t handle, int resumed);

static io_connect_t lapsusRootPort;
static IONotificationPortRef lapsusNotifyPort;
static io_object_t lapsusNotifier;
static uintptr_t lapsusHandle;

static void lapsusPowerChanged(void *refCon, io_service_t service, natural_t messageType, void *messageArgument) {
	if (messageType == kIOMessageCanSystemSleep) {
		IOAllowPowerChange(lapsusRootPort, (long)messageArgument);
	} else if (messageType == kIOMessageSystemWillSleep) {
		goSystemPower(lapsusHandle, 0);
		IOAllowPowerChange(lapsusRootPort, (long)messageArgument);
	} else if (messageType == kIOMessageSystemHasPoweredOn) {
		goSystemPower(lapsusHandle, 1);
	}
}

static int lapsusRegister(uintptr_t handle) {
	lapsusHandle = handle;
	lapsusRootPort = IORegisterForSystemPower(NULL, &lapsusNotifyPort, lapsusPowerChanged, &lapsusNotifier);
	if (lapsusRootPort == 0) {
		return -1;
	}
	CFRunLoopAddSource(CFRunLoopGetCurrent(), IONotificationPortGetRunLoopSource(lapsusNotifyPort), kCFRunLoopDefaultMode);
	return 0;
}

static void lapsusDeregister(void) {
	CFRunLoopRemoveSource(CFRunLoopGetCurrent(), IONotificationPortGetRunLoopSource(lapsusNotifyPort), kCFRunLoopDefaultMode);
	IODeregisterForSystemPower(&lapsusNotifier);
	IOServiceClose(lapsusRootPort);
	IONotificationPortDestroy(lapsusNotifyPort);
}
*/
import "C"

import (
	"context"
	"runtime"
	"runtime/cgo"
)

//export goSystemPower
func goSystemPower(handle C.uintptr_t, resumed C.int) {
	w, ok := cgo.Handle(handle).Value().(*Watcher)
	if !ok {
		return
	}
	if resumed != 0 {
		w.wake()
	} else {
		w.sleep()
	}
}

// Start receives IOKit system power notifications on a dedicated run loop
// until ctx is done. Only one watcher per process is supported.
func (w *Watcher) Start(ctx context.Context) {
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		handle := cgo.NewHandle(w)
		defer handle.Delete()

		if C.lapsusRegister(C.uintptr_t(handle)) != 0 {
			w.logger().Warn("Failed to register for system power notifications")
			return
		}
		defer C.lapsusDeregister()

		runLoop := C.CFRunLoopGetCurrent()
		stop := context.AfterFunc(ctx, func() { C.CFRunLoopStop(runLoop) })
		defer stop()

		w.logger().Debug("Wake detection started", "source", "iokit")
		if ctx.Err() != nil {
			return
		}
		C.CFRunLoopRun()
	}()
}
