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
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gdamore/tcell/v2"

	"storyboard/internal/autosave"
	"storyboard/internal/canvas"
	"storyboard/internal/config"
	"storyboard/internal/crash"
	"storyboard/internal/domain"
	"storyboard/internal/editor"
	"storyboard/internal/export"
	"storyboard/internal/gateway"
	"storyboard/internal/imagegen"
	applog "storyboard/internal/log"
	"storyboard/internal/metrics"
	"storyboard/internal/repository"
	"storyboard/internal/server"
	"storyboard/internal/store"
	"storyboard/internal/telemetry"
	"storyboard/internal/tui"
)

var errUsage = errors.New("usage")

// imageTimeout bounds a single scene image download.
const imageTimeout = 30 * time.Second

type cli struct {
	cfg config.AppConfig
	sec config.Secrets
	log *slog.Logger
}

func (c *cli) serve(ctx context.Context) error {
	l := applog.WithOperation(c.log, "serve")
	db, err := repository.Open(ctx, c.cfg.Server.DBDriver, c.cfg.Server.DBDSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			l.Warn("close db", slog.Any("err", err))
		}
	}()

	m := metrics.New()
	images, err := imagegen.FromConfig(ctx, c.cfg.Images, c.sec,
		imagegen.WithMetrics(m),
		imagegen.WithFetch(imagegen.HTTPFetch(&http.Client{Timeout: imageTimeout})),
	)
	if err != nil {
		return fmt.Errorf("image service: %w", err)
	}

	srv := server.New(server.Config{
		Addr:        c.cfg.Server.Addr,
		CORSOrigins: c.cfg.Server.CORSOrigins,
		AuthSecret:  c.cfg.Server.AuthSecret,
	}, db, images, server.WithMetrics(m))

	telemetry.Event(telemetry.EventServerStarted, map[string]any{"db": c.cfg.Server.DBDriver, "images": c.cfg.Images.Provider})
	l.Info("serving", slog.String("addr", c.cfg.Server.Addr), slog.String("db", c.cfg.Server.DBDriver))
	return srv.Run(ctx)
}

func (c *cli) gateways() (*gateway.Set, error) {
	gw, err := gateway.Open(c.cfg, c.sec)
	if err != nil {
		return nil, fmt.Errorf("open gateway: %w", err)
	}
	return gw, nil
}

func (c *cli) projects(ctx context.Context) error {
	gw, err := c.gateways()
	if err != nil {
		return err
	}
	list, err := gw.Projects.List(ctx)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("No projects yet. Create one with: storyboard new <title>")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tUPDATED")
	for _, p := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Title, p.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func (c *cli) newProject(ctx context.Context, title string) error {
	in := domain.ProjectCreate{Title: title}
	if err := in.Validate(); err != nil {
		return err
	}
	gw, err := c.gateways()
	if err != nil {
		return err
	}
	p, err := gw.Projects.Create(ctx, in)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	c.log.Info("project created", slog.String("id", p.ID))
	fmt.Println(p.ID)
	return nil
}

func (c *cli) edit(ctx context.Context, projectID string) error {
	gw, err := c.gateways()
	if err != nil {
		return err
	}
	// log lines would tear the terminal canvas; only the file sink stays
	applog.Init(logOptions(c.cfg.Logging, io.Discard))
	l := applog.WithComponent("edit")

	sess := editor.New(gw,
		editor.WithAutosave(autosave.Config{
			Delay:         time.Duration(c.cfg.Autosave.DelayMs) * time.Millisecond,
			RetryAttempts: c.cfg.Autosave.RetryAttempts,
		}),
		editor.WithMetrics(metrics.New()),
		editor.WithImageFetch(canvas.HTTPFetch(&http.Client{Timeout: imageTimeout})),
		editor.WithLogger(l),
	)
	defer sess.Close(context.Background())

	if err := sess.Open(ctx, projectID); err != nil {
		return err
	}
	telemetry.Event(telemetry.EventProjectOpened, map[string]any{"scenes": len(sess.Store().Scenes()), "mode": gw.Mode})

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("terminal: %w", err)
	}
	// the crash handler runs after the screen is restored
	defer crash.Recover(crash.Handler{
		ProjectID: projectID,
		Flush: func(ctx context.Context) error {
			if res := sess.Flush(ctx); res.Failed > 0 {
				return fmt.Errorf("%d scenes not saved", res.Failed)
			}
			return nil
		},
	})
	defer screen.Fini()

	if err := tui.New(screen, sess, tui.WithLogger(l)).Run(ctx); err != nil {
		return err
	}
	if res := sess.Flush(context.Background()); res.Failed > 0 {
		return fmt.Errorf("%d scenes could not be saved: %w", res.Failed, domain.ErrUnavailable)
	}
	return nil
}

type exportArgs struct {
	projectID string
	out       string
	preset    string
	raster    bool
	font      string
}

func parseExportArgs(args []string) (exportArgs, error) {
	var a exportArgs
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&a.preset, "preset", "", "screen, retina or print; out is a directory")
	fs.BoolVar(&a.raster, "raster", false, "embed a raster rendering in PDF output")
	fs.StringVar(&a.font, "font", "", "TTF/OTF font for captions")
	if err := fs.Parse(args); err != nil {
		return a, fmt.Errorf("%w: %v", errUsage, err)
	}
	switch fs.NArg() {
	case 1:
		a.projectID = fs.Arg(0)
	case 2:
		a.projectID, a.out = fs.Arg(0), fs.Arg(1)
	default:
		return a, fmt.Errorf("%w: export requires <projectID> [out]", errUsage)
	}
	return a, nil
}

// exportPath resolves where a single-file export goes. An empty out or a
// directory gets a generated file name.
func exportPath(out, dir, title string, now time.Time) string {
	if out == "" {
		return filepath.Join(dir, export.FileName(title, export.FormatPNG, now))
	}
	if st, err := os.Stat(out); err == nil && st.IsDir() {
		return filepath.Join(out, export.FileName(title, export.FormatPNG, now))
	}
	return out
}

func (c *cli) export(ctx context.Context, args []string) error {
	a, err := parseExportArgs(args)
	if err != nil {
		return err
	}
	gw, err := c.gateways()
	if err != nil {
		return err
	}
	full, err := gw.Projects.Get(ctx, a.projectID)
	if err != nil {
		return fmt.Errorf("load project %s: %w", a.projectID, err)
	}
	p := full.Project
	frame := export.Fit(store.State{Project: &p, Scenes: full.Scenes, Connections: full.Connections}, export.DefaultMargin)

	urls := make([]string, 0, len(frame.Cards))
	for _, card := range frame.Cards {
		if card.ImageURL != "" {
			urls = append(urls, card.ImageURL)
		}
	}
	opt := export.Options{
		FontFile:  a.font,
		RasterPDF: a.raster,
		Images:    export.FetchImages(ctx, &http.Client{Timeout: imageTimeout}, urls, c.log),
	}

	var written []string
	if a.preset != "" {
		preset, err := export.LookupPreset(a.preset)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		dir := a.out
		if dir == "" {
			dir = c.cfg.General.ExportDir
		}
		base := strings.TrimSuffix(export.FileName(p.Title, export.FormatPNG, time.Now()), ".png")
		written, err = export.Batch(ctx, frame, dir, base, preset, opt)
		if err != nil {
			return err
		}
	} else {
		path := exportPath(a.out, c.cfg.General.ExportDir, p.Title, time.Now())
		if err := export.WriteFile(ctx, frame, path, opt); err != nil {
			return err
		}
		written = []string{path}
	}

	for _, path := range written {
		fmt.Println("Exported", path)
	}
	telemetry.Event(telemetry.EventExported, map[string]any{"files": len(written), "scenes": len(full.Scenes), "preset": a.preset})
	return nil
}
