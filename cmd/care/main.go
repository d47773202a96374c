package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-care/internal/api"
	"github.com/joeblew999/plat-care/internal/config"
	"github.com/joeblew999/plat-care/internal/facility"
	"github.com/joeblew999/plat-care/internal/server"
)

// Options defines the CLI flags and env vars for the care server.
// Flags: --config, --host, --port, --data-dir, --web-dir
// Env vars: SERVICE_CONFIG, SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_WEB_DIR
// Unset flags keep the value from the config file or CARE_* environment.
type Options struct {
	Config  string `doc:"Path to config file (default ./config.yaml when present)"`
	Host    string `doc:"Host to bind to"`
	Port    int    `doc:"Port to listen on" short:"p"`
	DataDir string `doc:"Directory holding facility datasets"`
	WebDir  string `doc:"Path to web/ directory overriding the embedded assets"`
}

func loadConfig(opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.Host != "" {
		cfg.Server.Host = opts.Host
	}
	if opts.Port != 0 {
		cfg.Server.Port = opts.Port
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.WebDir != "" {
		cfg.WebDir = opts.WebDir
	}
	if err := config.InitLogger(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newServer(opts *Options) (*config.Config, *server.Server, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	srv, err := server.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, srv, nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", eris.ToString(err, false))
	os.Exit(1)
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		ctx, cancel := context.WithCancel(context.Background())
		stopped := make(chan struct{})

		hooks.OnStart(func() {
			defer close(stopped)

			cfg, srv, err := newServer(opts)
			if err != nil {
				fatal(err)
			}
			defer func() { _ = srv.Close() }()

			host := cfg.Server.Host
			if host == "" || host == "0.0.0.0" {
				host = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)

			fmt.Println()
			fmt.Printf("plat-care server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", cfg.DataDir)
			fmt.Println()
			fmt.Printf("  Viewer:  %s/viewer\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			if err := srv.Run(ctx, addr); err != nil {
				zap.L().Error("server stopped", zap.Error(err))
			}
			_ = zap.L().Sync()
		})

		// humacli calls OnStop on SIGINT/SIGTERM; wait for the drain.
		hooks.OnStop(func() {
			cancel()
			<-stopped
		})
	})

	cli.Root().Use = "care"
	cli.Root().Short = "Care facility map viewer"
	cli.Root().Version = api.Version

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			_, srv, err := newServer(opts)
			if err != nil {
				fatal(err)
			}
			defer func() { _ = srv.Close() }()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fatal(eris.Wrap(err, "marshal spec"))
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// config subcommand: print the resolved configuration
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration as YAML",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			cfg, err := loadConfig(opts)
			if err != nil {
				fatal(err)
			}
			output, err := yaml.Marshal(redacted(*cfg))
			if err != nil {
				fatal(eris.Wrap(err, "marshal config"))
			}
			fmt.Print(string(output))
		}),
	}
	cli.Root().AddCommand(configCmd)

	// check subcommand: load every category and report counts per filter value
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Load every category dataset and print feature counts",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			_, srv, err := newServer(opts)
			if err != nil {
				fatal(err)
			}
			defer func() { _ = srv.Close() }()

			failed := 0
			for _, line := range check(cmd.Context(), srv) {
				fmt.Println(line.text)
				if line.failed {
					failed++
				}
			}
			if failed > 0 {
				os.Exit(1)
			}
		}),
	}
	cli.Root().AddCommand(checkCmd)

	// legend subcommand: print the legend for a set of visible categories
	legendCmd := &cobra.Command{
		Use:   "legend [category...]",
		Short: "Print the legend for the given visible categories (all when none given)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			_, srv, err := newServer(opts)
			if err != nil {
				fatal(err)
			}
			defer func() { _ = srv.Close() }()

			entries, err := legend(srv.Categories().List(), args)
			if err != nil {
				fatal(err)
			}
			for _, e := range entries {
				fmt.Printf("%-8s %s\n", e.Color, e.Label)
			}
		}),
	}
	cli.Root().AddCommand(legendCmd)

	cli.Run()
}

type checkLine struct {
	text   string
	failed bool
}

func check(ctx context.Context, srv *server.Server) []checkLine {
	if ctx == nil {
		ctx = context.Background()
	}
	cats := srv.Categories()
	var lines []checkLine
	for _, cat := range cats.List() {
		markers, total, err := cats.Features(ctx, cat.ID, facility.AllValues)
		if err != nil {
			lines = append(lines, checkLine{text: fmt.Sprintf("%-14s FAILED %s", cat.ID, eris.ToString(err, false)), failed: true})
			continue
		}
		lines = append(lines, checkLine{text: fmt.Sprintf("%-14s %d of %d", cat.ID, len(markers), total)})
		if !cat.Filter.Enabled() {
			continue
		}
		values, err := cats.Options(ctx, cat.ID)
		if err != nil {
			lines = append(lines, checkLine{text: fmt.Sprintf("  options FAILED %s", eris.ToString(err, false)), failed: true})
			continue
		}
		for _, v := range values {
			if v == facility.AllValues {
				continue
			}
			m, _, err := cats.Features(ctx, cat.ID, v)
			if err != nil {
				lines = append(lines, checkLine{text: fmt.Sprintf("  %s=%s FAILED", cat.Filter.Property, v), failed: true})
				continue
			}
			lines = append(lines, checkLine{text: fmt.Sprintf("  %s=%s %d", cat.Filter.Property, v, len(m))})
		}
	}
	return lines
}

func legend(categories []*facility.Category, visible []string) ([]facility.LegendEntry, error) {
	state := facility.NewViewState(categories)
	if len(visible) == 0 {
		return facility.Legend(categories, state), nil
	}
	known := make(map[string]bool, len(categories))
	for _, c := range categories {
		known[c.ID] = true
		state.Visible[c.ID] = false
	}
	for _, arg := range visible {
		for _, id := range strings.Split(arg, ",") {
			if id == "" {
				continue
			}
			if !known[id] {
				return nil, eris.Wrapf(facility.ErrUnknownCategory, "category %q", id)
			}
			state.Visible[id] = true
		}
	}
	return facility.Legend(categories, state), nil
}

// redacted blanks secrets before the configuration is printed.
func redacted(cfg config.Config) config.Config {
	if cfg.StadiaAPIKey != "" {
		cfg.StadiaAPIKey = "***"
	}
	basemaps := make([]config.BasemapConfig, len(cfg.Basemaps))
	copy(basemaps, cfg.Basemaps)
	for i := range basemaps {
		if basemaps[i].APIKey != "" {
			basemaps[i].APIKey = "***"
		}
	}
	cfg.Basemaps = basemaps
	return cfg
}
