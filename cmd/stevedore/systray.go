//go:build uifrontend

package main

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/wailsapp/wails/v3/pkg/application"

	"github.com/slonopotamus/stevedore/internal/dockerctx"
	"github.com/slonopotamus/stevedore/internal/supervisor"
)

// runSession shows the tray icon and drives the supervisor behind it.
//
// Behavior:
//   - Grey icon while the distribution and contexts come up
//   - Solid icon once docker is routed to the Linux engine
//   - "Quit" in the menu → teardown, then the app exits
//
// The supervisor runs on its own goroutine; the tray only ever calls Quit.
func runSession(ctx context.Context, sup *supervisor.Supervisor) error {
	app := application.New(application.Options{
		Name: "Stevedore",
	})

	tray := app.SystemTray.New()
	tray.SetIcon(generateTrayIcon(false))
	tray.SetTooltip("Stevedore (starting)")
	tray.SetMenu(buildTrayMenu(sup, "Starting"))

	sup.OnStateChange(func(s supervisor.State) {
		switch s {
		case supervisor.StateRunning:
			tray.SetIcon(generateTrayIcon(true))
			tray.SetTooltip("Stevedore")
			tray.SetMenu(buildTrayMenu(sup, "Docker engine running"))
		case supervisor.StateStopping:
			tray.SetIcon(generateTrayIcon(false))
			tray.SetTooltip("Stevedore (stopping)")
			tray.SetMenu(buildTrayMenu(sup, "Stopping"))
		}
	})

	var sessionErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer app.Quit()
		if err := sup.Start(ctx); err != nil {
			sessionErr = err
			return
		}
		sessionErr = sup.Run(ctx)
	}()

	if err := app.Run(); err != nil {
		logrus.WithError(err).Error("tray application")
	}

	// The app can also exit on its own, e.g. at Windows logoff.
	sup.Quit()
	<-done
	return sessionErr
}

// buildTrayMenu creates the tray menu with a disabled status line.
func buildTrayMenu(sup *supervisor.Supervisor, status string) *application.Menu {
	menu := application.NewMenu()
	menu.Add(status).SetEnabled(false)
	for _, c := range sup.Contexts() {
		label := "Context " + c.Name
		if c.State == dockerctx.StateActive {
			label += " (active)"
		}
		menu.Add(label).SetEnabled(false)
	}
	menu.AddSeparator()
	menu.Add("Quit").OnClick(func(ctx *application.Context) {
		sup.Quit()
	})
	return menu
}
