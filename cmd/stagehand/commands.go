package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/stagehand"
	"github.com/loykin/stagehand/pkg/client"
)

func buildRoot() *cobra.Command {
	gf := &GlobalFlags{}
	root := &cobra.Command{
		Use:           "stagehand",
		Short:         "Ordered multi-service supervisor",
		Long:          "stagehand starts a fixed, ordered set of local services, waits for each to become ready before starting the next, and restarts crashed services with exponential backoff.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&gf.ConfigPath, "config", "c", "stagehand.toml", "path to TOML config")
	root.PersistentFlags().StringVar(&gf.LogLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&gf.NoColor, "no-color", false, "disable ANSI colors in logs")

	root.AddCommand(upCmd(gf))
	root.AddCommand(validateCmd(gf))
	root.AddCommand(statusCmd())
	root.AddCommand(shutdownCmd())
	return root
}

func upCmd(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Start all services and supervise them until shutdown",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := stagehand.LoadConfig(gf.ConfigPath)
			if err != nil {
				return err
			}
			level := cfg.LogLevel
			if gf.LogLevel != "" {
				level = gf.LogLevel
			}
			log := stagehand.SetupLogging(level, gf.NoColor)
			if err := stagehand.RegisterMetricsDefault(); err != nil {
				return err
			}

			sup, err := stagehand.New(cfg, log)
			if err != nil {
				return err
			}

			var api *http.Server
			if cfg.API.Listen != "" {
				api, err = stagehand.NewHTTPServer(cfg.API.Listen, cfg.API.BasePath, sup)
				if err != nil {
					return err
				}
				log.Info("api listening", "addr", cfg.API.Listen, "base", cfg.API.BasePath)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go stagehand.NewResourceSampler(sup, log).Run(ctx)
			sigc := make(chan os.Signal, 1)
			signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigc
				log.Info("signal received, shutting down", "signal", sig.String())
				sup.Shutdown()
			}()

			err = sup.Run(ctx)
			if api != nil {
				sctx, scancel := context.WithTimeout(context.Background(), 3*time.Second)
				_ = api.Shutdown(sctx)
				scancel()
			}
			return err
		},
	}
}

func validateCmd(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the config without starting anything",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := stagehand.LoadConfig(gf.ConfigPath)
			if err != nil {
				return err
			}
			cmd.Printf("ok: %d services, start interval %s\n", len(cfg.Specs), cfg.StartInterval)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	af := &APIFlags{}
	var name string
	var asJSON bool
	c := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running stagehand instance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl := client.New(af.URL, af.Timeout)
			ctx, cancel := context.WithTimeout(cmd.Context(), af.Timeout+time.Second)
			defer cancel()
			if name != "" {
				st, err := cl.ServiceStatus(ctx, name)
				if err != nil {
					return err
				}
				return printJSON(cmd, st)
			}
			st, err := cl.Status(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, st)
			}
			printStatusTable(cmd, st)
			return nil
		},
	}
	c.Flags().StringVar(&af.URL, "api-url", defaultAPIURL, "base URL of the running instance's API")
	c.Flags().DurationVar(&af.Timeout, "api-timeout", client.DefaultTimeout, "API request timeout")
	c.Flags().StringVar(&name, "name", "", "show a single service")
	c.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return c
}

func shutdownCmd() *cobra.Command {
	af := &APIFlags{}
	c := &cobra.Command{
		Use:   "shutdown",
		Short: "Ask a running stagehand instance to stop all services",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl := client.New(af.URL, af.Timeout)
			ctx, cancel := context.WithTimeout(cmd.Context(), af.Timeout+time.Second)
			defer cancel()
			if err := cl.Shutdown(ctx); err != nil {
				return err
			}
			cmd.Println("shutdown requested")
			return nil
		},
	}
	c.Flags().StringVar(&af.URL, "api-url", defaultAPIURL, "base URL of the running instance's API")
	c.Flags().DurationVar(&af.Timeout, "api-timeout", client.DefaultTimeout, "API request timeout")
	return c
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(b))
	return nil
}

func printStatusTable(cmd *cobra.Command, st client.Status) {
	overall := st.Phase
	if st.Degraded {
		overall += " (degraded)"
	}
	cmd.Printf("phase: %s\n", overall)
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SERVICE\tSTATE\tPID\tRESTARTS\tLAST ERROR")
	for _, s := range st.Services {
		pid := ""
		if s.PID != 0 {
			pid = fmt.Sprintf("%d", s.PID)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", s.Name, s.State, pid, s.Restarts, s.LastError)
	}
	_ = w.Flush()
}
