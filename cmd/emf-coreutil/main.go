// emf-coreutil is a small host process around the runtime package: it
// installs the default native library and module loaders, exposes a
// handful of inspection/load commands, and signals systemd readiness once
// the registries are up, mirroring cmd/sysbox-fs/main.go's app.Before/
// app.Action split and its SdNotify(SdNotifyReady) call after setup.
package main

import (
	"fmt"
	"os"

	systemd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/fimoengine/emf-core-base-go/library"
	"github.com/fimoengine/emf-core-base-go/library/nativeloader"
	"github.com/fimoengine/emf-core-base-go/module"
	"github.com/fimoengine/emf-core-base-go/module/nativemodule"
	"github.com/fimoengine/emf-core-base-go/runtime"
)

var rt *runtime.Runtime

func setupLogging(c *cli.Context) error {
	if format := c.String("log-format"); format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{TimestampFormat: "2006-01-02 15:04:05", FullTimestamp: true})
	}

	switch level := c.String("log-level"); level {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	case "":
		logrus.SetLevel(logrus.InfoLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
	return nil
}

func setupRuntime(c *cli.Context) error {
	rt = runtime.New(runtime.Config{
		NativeLibraryLoader: nativeloader.New(nil).VTable(),
		NativeModuleLoader:  nativemodule.New(nil).VTable(),
	})
	logrus.Info(rt.Describe())

	if ok, err := systemd.SdNotify(false, systemd.SdNotifyReady); err != nil {
		logrus.Warnf("failed to notify systemd readiness: %v", err)
	} else if !ok {
		logrus.Debug("systemd notification socket not set; skipping readiness ping")
	}
	return nil
}

func cmdLoaders() *cli.Command {
	return &cli.Command{
		Name:  "loaders",
		Usage: "list the registered library and module loaders",
		Action: func(c *cli.Context) error {
			fmt.Printf("library loaders: %d\n", rt.Libraries().GetNumLoaders())
			fmt.Printf("module loaders:  %d\n", rt.Modules().GetNumLoaders())
			return nil
		},
	}
}

func cmdLoadLibrary() *cli.Command {
	return &cli.Command{
		Name:      "load-library",
		Usage:     "load a native library from a path",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return cli.Exit("a library path is required", 1)
			}
			rt.Lock()
			defer rt.Unlock()
			h, err := rt.Libraries().Load(library.DefaultNativeLoaderHandle, path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("load failed: %v", err), 1)
			}
			fmt.Printf("loaded library handle %d\n", h)
			return nil
		},
	}
}

func cmdLoadModule() *cli.Command {
	return &cli.Command{
		Name:      "load-module",
		Usage:     "add and load a native module from a path",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return cli.Exit("a module path is required", 1)
			}
			rt.Lock()
			defer rt.Unlock()
			m, err := rt.Modules().AddModule(module.DefaultNativeModuleLoaderHandle, path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("add-module failed: %v", err), 1)
			}
			if err := rt.Modules().Load(m); err != nil {
				return cli.Exit(fmt.Sprintf("load failed: %v", err), 1)
			}
			fmt.Printf("loaded module handle %d\n", m)
			return nil
		},
	}
}

func cmdStatus() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "print a one-line runtime status summary",
		Action: func(c *cli.Context) error {
			fmt.Println(rt.Describe())
			return nil
		},
	}
}

func main() {
	app := &cli.App{
		Name:  "emf-coreutil",
		Usage: "inspect and drive an emf-core-base runtime",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warning, error"},
			&cli.StringFlag{Name: "log-format", Value: "text", Usage: "text or json"},
		},
		Before: func(c *cli.Context) error {
			if err := setupLogging(c); err != nil {
				return err
			}
			return setupRuntime(c)
		},
		Commands: []*cli.Command{
			cmdLoaders(),
			cmdLoadLibrary(),
			cmdLoadModule(),
			cmdStatus(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
