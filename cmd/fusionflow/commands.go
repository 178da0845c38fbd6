package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/BaSui01/fusionflow/api"
	"github.com/BaSui01/fusionflow/config"
	"github.com/BaSui01/fusionflow/image"
	"github.com/BaSui01/fusionflow/internal/telemetry"
)

func init() {
	rootCmd.AddCommand(serveCmd, generateCmd, enginesCmd, versionCmd, healthCmd)

	addGenerateFlags(generateCmd.Flags())
	_ = generateCmd.MarkFlagRequired("prompt")

	enginesCmd.Flags().Bool("json", false, "print JSON")

	healthCmd.Flags().String("addr", "http://localhost:8080", "server address")
	healthCmd.Flags().Bool("ready", false, "check /ready instead of /health")
}

func addGenerateFlags(f *pflag.FlagSet) {
	f.String("engine", "", "engine to use (flux, gemini, openai); defaults to generation.default_engine")
	f.StringP("prompt", "p", "", "text instruction")
	f.String("base", "", "path to the base image")
	f.String("base-intent", "", "usage intent of the base image")
	f.String("secondary", "", "path to the secondary image")
	f.String("secondary-intent", "", "usage intent of the secondary image")
	f.String("aspect-ratio", "", "aspect ratio, e.g. 16:9")
	f.String("format", "", "output format (jpeg, png, webp)")
	f.Int64("seed", 0, "seed for reproducible output")
	f.Bool("upsample", false, "let the engine rewrite the prompt")
	f.Int("safety", 2, "safety tolerance (flux only)")
	f.StringP("out", "o", "", "write the image to this file instead of printing JSON")
	f.Duration("timeout", 0, "overall timeout; defaults to generation.request_timeout")
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the FusionFlow HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		logger, level := initLogger(cfg.Log)
		defer func() { _ = logger.Sync() }()

		logger.Info("Starting FusionFlow",
			zap.String("version", Version),
			zap.String("build_time", BuildTime),
			zap.String("git_commit", GitCommit),
			zap.String("config", path),
		)

		otelProviders, err := telemetry.Init(cfg.Telemetry, Version, logger)
		if err != nil {
			logger.Warn("failed to initialize telemetry", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelProviders.Shutdown(ctx); err != nil {
				logger.Warn("telemetry shutdown failed", zap.Error(err))
			}
		}()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		// 配置文件变更时仅热更新日志级别，其余配置需重启
		if path != "" {
			watcher := config.NewWatcher(path, cfg, logger)
			watcher.OnReload(func(_, current *config.Config) {
				level.SetLevel(parseLevel(current.Log.Level))
			})
			go func() { _ = watcher.Run(ctx) }()
		}

		srv := NewServer(cfg, logger)
		if err := srv.Start(); err != nil {
			return err
		}
		err = srv.Wait(ctx)
		logger.Info("FusionFlow stopped")
		return err
	},
}

// =============================================================================
// 🖼️ generate 命令
// =============================================================================

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one image from the command line",
	Example: `  fusionflow generate -p "a red fox in the snow" -o fox.png
  fusionflow generate --engine gemini -p "put the hat on the dog" \
      --base dog.jpg --base-intent object_replacement \
      --secondary hat.png --secondary-intent reference_object -o out.png`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, _ := initLogger(cfg.Log)
		defer func() { _ = logger.Sync() }()

		req, err := generateRequestFromFlags(cmd)
		if err != nil {
			return err
		}
		fusion, err := req.ToFusionRequest()
		if err != nil {
			return err
		}
		fusion.OnProgress = func(ev image.ProgressEvent) {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: attempt %d/%d %s\n", ev.Engine, ev.Attempt, ev.MaxAttempts, ev.Status)
		}

		timeout, _ := cmd.Flags().GetDuration("timeout")
		if timeout <= 0 {
			timeout = cfg.Generation.RequestTimeout
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		img, err := buildGenerator(cfg, nil, logger).Generate(ctx, fusion)
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(img)
		}
		data, err := base64.StdEncoding.DecodeString(img.ImageBase64)
		if err != nil {
			return fmt.Errorf("decode image: %w", err)
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write image: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, %d bytes) -> %s\n", img.ID, img.MimeType, len(data), out)
		return nil
	},
}

// generateRequestFromFlags 将命令行参数转换为与 HTTP API 相同的请求结构
func generateRequestFromFlags(cmd *cobra.Command) (*api.GenerateRequest, error) {
	f := cmd.Flags()
	prompt, _ := f.GetString("prompt")
	engine, _ := f.GetString("engine")

	req := &api.GenerateRequest{
		Engine:      engine,
		Instruction: prompt,
	}

	var err error
	if req.Base, err = imageInputFromFlags(cmd, "base"); err != nil {
		return nil, err
	}
	if req.Secondary, err = imageInputFromFlags(cmd, "secondary"); err != nil {
		return nil, err
	}

	req.Settings.AspectRatio, _ = f.GetString("aspect-ratio")
	req.Settings.OutputFormat, _ = f.GetString("format")
	req.Settings.PromptUpsampling, _ = f.GetBool("upsample")
	req.Settings.SafetyTolerance, _ = f.GetInt("safety")
	if f.Changed("seed") {
		seed, _ := f.GetInt64("seed")
		req.Settings.Seed = &seed
	}
	return req, nil
}

func imageInputFromFlags(cmd *cobra.Command, name string) (*api.ImageInput, error) {
	path, _ := cmd.Flags().GetString(name)
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s image: %w", name, err)
	}
	intent, _ := cmd.Flags().GetString(name + "-intent")
	return &api.ImageInput{
		Data:   base64.StdEncoding.EncodeToString(data),
		Intent: intent,
	}, nil
}

// =============================================================================
// 📋 engines 命令
// =============================================================================

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List engines and whether their credentials are configured",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		resp := api.EngineList(buildGenerator(cfg, nil, zap.NewNop()))

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
		return printEngines(cmd.OutOrStdout(), resp)
	},
}

func printEngines(w io.Writer, resp api.EngineListResponse) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENGINE\tCONFIGURED\tASYNC\tFORMATS\tDEFAULT")
	for _, e := range resp.Engines {
		def := ""
		if e.Default {
			def = "*"
		}
		fmt.Fprintf(tw, "%s\t%t\t%t\t%s\t%s\n",
			e.Name, e.Configured, e.Async, strings.Join(e.OutputFormats, ","), def)
	}
	return tw.Flush()
}

// =============================================================================
// 🏥 health / version 命令
// =============================================================================

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		path := "/health"
		if ready, _ := cmd.Flags().GetBool("ready"); ready {
			path = "/ready"
		}

		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(strings.TrimRight(addr, "/") + path)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("health check failed: status %d", resp.StatusCode)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "OK")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "FusionFlow %s\n", Version)
		fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
		fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
	},
}
