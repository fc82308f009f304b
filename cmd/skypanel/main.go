package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skycode/skypanel/config"
	"github.com/skycode/skypanel/filelock"
)

var (
	GitCommit  string
	GitVersion string
)

const (
	flagConfig   = "config"
	flagDebug    = "debug"
	flagResource = "resource"
	flagBackup   = "backup"
	envPrefix    = "skypanel"
)

var (
	debugMode    bool
	execResource string
	execBackup   string
)

func main() {
	rootCmd := newRootCmd()

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "skypanel",
		Short:         "Hosting control panel backend",
		Long:          "Locked-down API shell plus file locking and backup tooling for the hosting control panel.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       versionString(),
	}

	rootCmd.PersistentFlags().String(flagConfig, config.DefaultConfigPath, "Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVar(&debugMode, flagDebug, false, "Enable debug logging on the console")

	_ = viper.BindPFlag(flagConfig, rootCmd.PersistentFlags().Lookup(flagConfig))
	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()

	execCmd := &cobra.Command{
		Use:   "exec --resource NAME [--backup FILE] -- COMMAND [ARGS...]",
		Short: "Run a command while holding the exclusive lock for a resource",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runExec,
	}
	execCmd.Flags().StringVar(&execResource, flagResource, "", "Resource whose lock to hold")
	execCmd.Flags().StringVar(&execBackup, flagBackup, "", "File to back up under the lock before running the command")
	_ = execCmd.MarkFlagRequired(flagResource)

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a path or port against the locked configuration",
	}
	checkCmd.AddCommand(
		&cobra.Command{
			Use:   "path PATH",
			Short: "Fail unless PATH is inside the allowed base directory",
			Args:  cobra.ExactArgs(1),
			RunE:  runCheckPath,
		},
		&cobra.Command{
			Use:   "port PORT",
			Short: "Fail unless PORT is the locked API port",
			Args:  cobra.ExactArgs(1),
			RunE:  runCheckPort,
		},
	)

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the API server on the locked port",
			Args:  cobra.NoArgs,
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "backup FILE",
			Short: "Back up FILE under its lock, rotating old copies",
			Args:  cobra.ExactArgs(1),
			RunE:  runBackup,
		},
		&cobra.Command{
			Use:   "backups FILE",
			Short: "List the backups of FILE, newest first",
			Args:  cobra.ExactArgs(1),
			RunE:  runListBackups,
		},
		&cobra.Command{
			Use:   "config",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE:  runShowConfig,
		},
		checkCmd,
		execCmd,
	)

	return rootCmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.server().Run(ctx)
}

func runBackup(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	path, err := filelock.WithExclusiveLock(a.serializer, args[0], func() (string, error) {
		return a.backups.BackupFile(args[0])
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func runListBackups(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	entries, err := a.backups.List(args[0])
	if err != nil {
		return err
	}

	for _, e := range entries {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Path)
	}
	return nil
}

func runShowConfig(cmd *cobra.Command, _ []string) error {
	manager := newConfigManager()
	if _, err := manager.Load(); err != nil {
		return err
	}

	out, err := manager.ShowConfig()
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func runCheckPath(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.guard.EnsurePathAllowed(args[0]); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}

func runCheckPort(cmd *cobra.Command, args []string) error {
	port, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", args[0], err)
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.guard.EnsurePort(port); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}

func runExec(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	return a.serializer.Do(execResource, func() error {
		if execBackup != "" {
			path, err := a.backups.BackupFile(execBackup)
			if err != nil {
				return err
			}
			a.logger.Infow("backup taken before exec", "backup", path)
		}

		child := exec.Command(args[0], args[1:]...)
		child.Stdin = cmd.InOrStdin()
		child.Stdout = cmd.OutOrStdout()
		child.Stderr = cmd.ErrOrStderr()
		return child.Run()
	})
}

func versionString() string {
	if GitVersion == "" {
		return "dev"
	}
	if GitCommit == "" {
		return GitVersion
	}
	return GitVersion + " (" + GitCommit + ")"
}
