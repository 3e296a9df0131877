//go:build windows

package main

import (
	"go.uber.org/zap"
	"golang.org/x/sys/windows"
)

// enableDPIAwareness opts into per-monitor DPI so hook coordinates match the screen.
func enableDPIAwareness() {
	const processPerMonitorDPIAware = 2

	setAwareness := windows.NewLazySystemDLL("shcore.dll").NewProc("SetProcessDpiAwareness")
	if err := setAwareness.Find(); err == nil {
		if ret, _, _ := setAwareness.Call(uintptr(processPerMonitorDPIAware)); ret != 0 {
			zap.S().Warnw("per-monitor DPI awareness not set", "hresult", ret)
		}
		return
	}

	setAware := windows.NewLazySystemDLL("user32.dll").NewProc("SetProcessDPIAware")
	if err := setAware.Find(); err != nil {
		zap.S().Debug("no DPI awareness API available")
		return
	}
	if ret, _, _ := setAware.Call(); ret == 0 {
		zap.S().Warn("system DPI awareness not set")
	}
}
