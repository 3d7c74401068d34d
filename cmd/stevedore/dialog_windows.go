//go:build windows

package main

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/windows"
)

const (
	mbOK        = 0x00000000
	mbIconError = 0x00000010
)

// showError reports a fatal error in a modal dialog. stevedore is built as
// a GUI-subsystem binary, so there is usually no console to print to.
func showError(err error) {
	logrus.WithError(err).Error("fatal")

	text, terr := windows.UTF16PtrFromString(errorMessage(err))
	if terr != nil {
		return
	}
	caption, _ := windows.UTF16PtrFromString("Stevedore")
	windows.MessageBox(0, text, caption, mbOK|mbIconError)
}
