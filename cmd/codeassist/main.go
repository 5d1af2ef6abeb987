package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codeassist/codeassist/internal/config"
	"github.com/codeassist/codeassist/internal/contextmgr"
	"github.com/codeassist/codeassist/internal/engine"
	"github.com/codeassist/codeassist/internal/log"
	"github.com/codeassist/codeassist/internal/pathguard"
	"github.com/codeassist/codeassist/internal/server"
	"github.com/codeassist/codeassist/internal/session"
	"github.com/codeassist/codeassist/internal/tool"

	// Import providers for registration
	_ "github.com/codeassist/codeassist/internal/provider/anthropic"
	_ "github.com/codeassist/codeassist/internal/provider/openai"
)

var version = "0.1.0"

var (
	addrFlag      string
	workspaceFlag string
)

func init() {
	// Initialize logging (enabled via CODEASSIST_DEBUG=1)
	_ = log.Init()

	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "Listen address (overrides config)")
	serveCmd.Flags().StringVarP(&workspaceFlag, "workspace", "w", "", "Workspace root (overrides config)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	defer log.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "codeassist",
	Short: "CodeAssist - AI coding assistant backend",
	Long: `CodeAssist runs an HTTP backend for AI-assisted coding: a streaming
chat endpoint driving an agent loop with workspace tools, plus session
history management.

Configuration is read from ~/.codeassist/settings.yaml and the
environment (CODEASSIST_ADDR, CODEASSIST_WORKSPACE, AI_PROVIDER,
AI_MODEL, AI_API_KEY, AI_BASE_URL).`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("codeassist version %s\n", version)
	},
}

func runServe() error {
	settings, err := config.Load()
	if err != nil {
		return err
	}
	if addrFlag != "" {
		settings.Addr = addrFlag
	}
	if workspaceFlag != "" {
		settings.Workspace = workspaceFlag
	}

	guard, err := pathguard.New(settings.Workspace)
	if err != nil {
		return fmt.Errorf("workspace %q: %w", settings.Workspace, err)
	}

	// Conversations and the task index live under .ai in the workspace,
	// which the guard's ignore set keeps out of tool listings.
	base := filepath.Join(guard.Root(), ".ai")
	store := session.NewStore(base)
	index := session.NewIndex(base, store)

	eng := engine.New(tool.Default, store, index, guard,
		contextmgr.New(settings.ContextWindow), settings.MaxIterations)

	srv := server.New(settings, eng)

	// Graceful shutdown on SIGINT/SIGTERM.
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	fmt.Printf("codeassist listening on %s (workspace %s)\n", settings.Addr, guard.Root())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Logger().Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
