// Package pumlcli implements the pumlview command: a live PlantUML preview in the
// browser plus export and URL helpers.
package pumlcli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/pflag"

	"oss.terrastruct.com/pumlview/lib/env"
	"oss.terrastruct.com/pumlview/lib/go2"
	"oss.terrastruct.com/pumlview/lib/log"
	"oss.terrastruct.com/pumlview/lib/version"
	"oss.terrastruct.com/pumlview/lib/xmain"
	"oss.terrastruct.com/pumlview/pumlpreview"
	"oss.terrastruct.com/pumlview/pumlsvc"
)

type flags struct {
	config  *string
	server  *string
	host    *string
	port    *string
	browser *string
	format  *string
	open    *bool
	debug   *bool
	version *bool
}

func Run(ctx context.Context, ms *xmain.State) (err error) {
	var f flags
	f.config = ms.Opts.String("PUMLVIEW_CONFIG", "config", "c", "", "path to the config file (default $XDG_CONFIG_HOME/pumlview/config.yml)")
	f.server = ms.Opts.String("PLANTUML_SERVER", "server", "s", "", fmt.Sprintf("PlantUML server that renders diagrams (default %s)", pumlsvc.DefaultServer))
	f.host = ms.Opts.String("HOST", "host", "h", "", "host listening address of the preview server (default localhost)")
	f.port = ms.Opts.String("PORT", "port", "p", "", "port listening address of the preview server (default 0, a random available port)")
	f.browser = ms.Opts.String("BROWSER", "browser", "", "", "browser executable that preview opens. Setting to 0 opens no browser.")
	f.format = ms.Opts.String("", "format", "f", "", "image format for export and url: svg or png")
	f.open, err = ms.Opts.Bool("", "open", "o", false, "open the diagram URL printed by url in the browser")
	if err != nil {
		return err
	}
	f.debug, err = ms.Opts.Bool("DEBUG", "debug", "d", false, "print debug logs.")
	if err != nil {
		ms.Log.Warn.Printf("Invalid DEBUG flag value ignored")
		f.debug = go2.Pointer(false)
	}
	f.version, err = ms.Opts.Bool("", "version", "v", false, "get the version")
	if err != nil {
		return err
	}

	err = ms.Opts.Flags.Parse(ms.Opts.Args)
	if !errors.Is(err, pflag.ErrHelp) && err != nil {
		return xmain.UsageErrorf("failed to parse flags: %v", err)
	}
	if errors.Is(err, pflag.ErrHelp) {
		help(ms)
		return nil
	}

	if *f.debug {
		ms.Env.Setenv("DEBUG", "1")
	}
	ctx = log.Stderr(ctx, env.Debug(ms.Env))
	defer log.Sync(ctx)
	if *f.browser != "" {
		ms.Env.Setenv("BROWSER", *f.browser)
	}

	if *f.version {
		fmt.Fprintln(ms.Stdout, version.Version)
		return nil
	}

	cfg, cfgPath, err := loadConfig(ms, f)
	if err != nil {
		return xmain.UsageErrorf("%v", err)
	}

	args := ms.Opts.Flags.Args()
	if len(args) == 0 {
		help(ms)
		return nil
	}

	switch args[0] {
	case "help":
		help(ms)
		return nil
	case "version":
		if len(args) > 1 {
			return xmain.UsageErrorf("version subcommand accepts no arguments")
		}
		fmt.Fprintln(ms.Stdout, version.Version)
		return nil
	case "config":
		return configCmd(ctx, ms, cfg, cfgPath)
	case "url":
		return urlCmd(ctx, ms, cfg, *f.format, *f.open)
	case "export":
		return exportCmd(ctx, ms, cfg, *f.format)
	case "preview":
		args = args[1:]
		if len(args) == 0 {
			return xmain.UsageErrorf("preview must be passed at least one file")
		}
	}
	return previewCmd(ctx, ms, cfg, args)
}

// loadConfig layers flags and their environment variables over the config file.
func loadConfig(ms *xmain.State, f flags) (*Config, string, error) {
	cfgPath := *f.config
	if cfgPath == "" {
		cfgPath = ConfigPath(ms.Env)
	} else {
		cfgPath = ms.AbsPath(cfgPath)
	}
	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return nil, "", err
	}
	if *f.server != "" {
		cfg.Server = *f.server
	}
	if *f.host != "" {
		cfg.Host = *f.host
	}
	if *f.port != "" {
		cfg.Port = *f.port
	}
	if *f.browser != "" {
		cfg.Browser = *f.browser
	}
	if cfg.Browser != "" && ms.Env.Getenv("BROWSER") == "" {
		ms.Env.Setenv("BROWSER", cfg.Browser)
	}
	return cfg, cfgPath, cfg.Validate()
}

func newService(ms *xmain.State, cfg *Config) *pumlsvc.Service {
	ms.Log.Debug.Printf("using PlantUML server %s", cfg.Server)
	return pumlsvc.New(pumlsvc.Config{
		Server: cfg.Server,
	})
}

func previewCmd(ctx context.Context, ms *xmain.State, cfg *Config, args []string) error {
	var inputPaths []string
	for _, arg := range args {
		if arg == "-" {
			return xmain.UsageErrorf("preview cannot watch stdin")
		}
		if strings.ContainsAny(arg, "*?[{") {
			matches, err := doublestar.FilepathGlob(ms.AbsPath(arg), doublestar.WithFilesOnly())
			if err != nil {
				return xmain.UsageErrorf("bad pattern %q: %v", arg, err)
			}
			if len(matches) == 0 {
				return xmain.UsageErrorf("no files match %q", arg)
			}
			inputPaths = append(inputPaths, matches...)
			continue
		}
		fp := ms.AbsPath(arg)
		d, err := os.Stat(fp)
		if err != nil {
			return xmain.UsageErrorf("%v", err)
		}
		if d.IsDir() {
			return xmain.UsageErrorf("%s is a directory", arg)
		}
		if pumlpreview.LanguageForPath(fp) == "" {
			ms.Log.Warn.Printf("%s does not have a PlantUML extension (%s) and will not be previewed", arg, strings.Join(pumlpreview.Extensions, ", "))
		}
		inputPaths = append(inputPaths, fp)
	}

	w, err := newWatcher(ctx, ms, newService(ms, cfg), watcherOpts{
		host:       cfg.Host,
		port:       cfg.Port,
		inputPaths: go2.Unique(inputPaths),
		panzoomURL: cfg.PanzoomURL,
	})
	if err != nil {
		return err
	}
	return w.run()
}

func targetFor(format, outputPath string) (pumlsvc.RenderTarget, error) {
	if format != "" {
		t, err := pumlsvc.ParseRenderTarget(format)
		if err != nil {
			return 0, xmain.UsageErrorf("%v", err)
		}
		if outputPath != "" && filepath.Ext(outputPath) != t.Ext() {
			return 0, xmain.UsageErrorf("--format %s does not match output path %s", format, outputPath)
		}
		return t, nil
	}
	if outputPath == "" {
		return pumlsvc.Vector, nil
	}
	switch filepath.Ext(outputPath) {
	case pumlsvc.Vector.Ext(), pumlsvc.Raster.Ext():
		return pumlsvc.TargetFromPath(outputPath), nil
	}
	return 0, xmain.UsageErrorf("%q is not a supported output path. Supported extensions are: .svg, .png", outputPath)
}
