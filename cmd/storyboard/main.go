/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"storyboard/internal/config"
	"storyboard/internal/domain"
	applog "storyboard/internal/log"
	"storyboard/internal/telemetry"
	"storyboard/internal/version"
)

func usage() {
	fmt.Println("Storyboard")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  storyboard version|-v|--version                  Show version")
	fmt.Println("  storyboard serve                                 Run the API server")
	fmt.Println("  storyboard projects                              List projects")
	fmt.Println("  storyboard new <title>                           Create a project and print its id")
	fmt.Println("  storyboard edit <projectID>                      Open a project on the terminal canvas")
	fmt.Println("  storyboard export [--preset name] [--raster] <projectID> [out.png|out.pdf|out.svg|dir]")
	fmt.Println("                                                   Export a project board")
}

func main() {
	applog.Init(applog.FromEnv())
	l := applog.WithComponent("cli")

	args := os.Args
	if len(args) < 2 {
		usage()
		return
	}
	switch args[1] {
	case "version", "--version", "-v":
		fmt.Println(version.String())
		return
	case "help", "--help", "-h":
		usage()
		return
	}

	cfg, sec, err := config.Load()
	if err != nil {
		l.Error("config load failed", slog.Any("err", err))
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	applog.Init(logOptions(cfg.Logging, nil))
	l = applog.WithComponent("cli")

	tc := telemetry.New(telemetry.FromConfig(cfg))
	telemetry.Install(tc)
	defer tc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l.Debug("start", slog.String("cmd", args[1]), slog.Int("args", len(args)))
	telemetry.Event(telemetry.EventStarted, map[string]any{"cmd": args[1]})

	app := &cli{cfg: cfg, sec: sec, log: l}
	switch args[1] {
	case "serve":
		err = app.serve(ctx)
	case "projects":
		err = app.projects(ctx)
	case "new":
		if len(args) < 3 {
			fmt.Println("new requires <title>")
			usage()
			os.Exit(2)
		}
		err = app.newProject(ctx, args[2])
	case "edit":
		if len(args) < 3 {
			fmt.Println("edit requires <projectID>")
			usage()
			os.Exit(2)
		}
		err = app.edit(ctx, args[2])
	case "export":
		err = app.export(ctx, args[2:])
	default:
		fmt.Println("Unknown command:", args[1])
		usage()
		os.Exit(2)
	}

	tc.Flush(context.Background())
	if err != nil {
		l.Error("command failed", slog.String("cmd", args[1]), slog.Any("err", err))
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, errUsage) {
			usage()
			os.Exit(2)
		}
		if errors.Is(err, domain.ErrNotFound) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}

// logOptions layers the config file's logging section over the environment.
func logOptions(c config.LoggingConfig, console io.Writer) applog.Options {
	opts := applog.FromEnv()
	if c.Level != "" {
		opts.Level = c.Level
	}
	if c.Format != "" {
		opts.Format = c.Format
	}
	if c.File != "" {
		opts.File = c.File
	}
	opts.AddSource = opts.AddSource || c.Source
	opts.Console = console
	return opts
}
