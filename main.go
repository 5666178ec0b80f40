package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"auto_reddit_speakout_poster/ledger"
	"auto_reddit_speakout_poster/publisher"
	"auto_reddit_speakout_poster/server"
)

var (
	configPath string
	verbose    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "speakout-poster",
		Short:         "Post the latest DH Speak Out cartoon to Reddit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.json", "path to config.json")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logs")

	root.AddCommand(newServeCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newRepairCmd())
	root.AddCommand(newStatusCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var (
		addr       string
		noSchedule bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := server.New(a.pub, a.ledger, server.Options{
				DashboardSecret: a.cfg.Server.DashboardSecret,
				Subreddit:       a.cfg.Reddit.Subreddit,
				Gatherer:        a.registry,
			}, a.logger)
			if err != nil {
				return err
			}
			listen := a.cfg.Server.Addr
			if addr != "" {
				listen = addr
			}
			httpSrv := &http.Server{
				Addr:              listen,
				Handler:           srv.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			schedDone := make(chan struct{})
			if noSchedule {
				close(schedDone)
			} else {
				sched := publisher.NewScheduler(a.pub, a.cfg.IntervalDuration(), a.cfg.Schedule.RunOnStart,
					publisher.RunOptions{DryRun: a.cfg.DryRun, SkipDuplicateCheck: a.cfg.SkipLatestCheck}, a.logger)
				go func() {
					defer close(schedDone)
					sched.Start(ctx)
				}()
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.WithField("addr", listen).Info("Starting web server")
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}
			a.logger.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err = httpSrv.Shutdown(shutdownCtx)
			// A scheduled run in flight finishes and records before exit.
			<-schedDone
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "http listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "serve the dashboard without the scheduler")
	return cmd
}

func newRunCmd() *cobra.Command {
	var dryRun, skipCheck bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the poster once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			rec := a.pub.Run(cmd.Context(), publisher.RunOptions{
				DryRun:             dryRun || a.cfg.DryRun,
				SkipDuplicateCheck: skipCheck || a.cfg.SkipLatestCheck,
				Source:             ledger.SourceManual,
			})
			if err := printJSON(cmd, rec); err != nil {
				return err
			}
			if rec.Outcome == ledger.OutcomeFailed {
				return fmt.Errorf("run failed: %s", rec.Error)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "fetch and check, but do not post")
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "skip the already-posted check")
	return cmd
}

func newRepairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair-comment",
		Short: "Add the source comment to the newest post if it is missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.pub.EnsureComment(cmd.Context())
			if err := printJSON(cmd, res); err != nil {
				return err
			}
			if res.Status == publisher.RepairFailed {
				return fmt.Errorf("comment repair failed: %s", res.Error)
			}
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the latest run record",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if all {
				history, err := a.ledger.ReadAll(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, history)
			}
			rec, ok, err := ledger.Latest(cmd.Context(), a.ledger)
			if err != nil {
				return err
			}
			if !ok {
				return printJSON(cmd, map[string]string{"message": "No runs recorded yet"})
			}
			return printJSON(cmd, rec)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "print the whole history")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
