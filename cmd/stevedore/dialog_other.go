//go:build !windows

package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

func showError(err error) {
	logrus.WithError(err).Debug("fatal")
	fmt.Fprintln(os.Stderr, errorMessage(err))
}
