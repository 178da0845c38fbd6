// =============================================================================
// FusionFlow 主入口
// =============================================================================
// 图像融合服务入口点，包含 HTTP 服务、健康检查、Prometheus 指标与命令行生成
//
// 使用方法:
//
//	fusionflow serve                            # 启动服务
//	fusionflow serve --config config.yaml       # 指定配置文件
//	fusionflow generate --prompt "..." --out a.png
//	fusionflow engines                          # 列出引擎及凭证状态
//	fusionflow version                          # 显示版本信息
//	fusionflow health                           # 健康检查
// =============================================================================

// @title FusionFlow API
// @version 1.0.0
// @description FusionFlow fuses an instruction and up to two reference images into a new image
// @description through Flux Kontext, Gemini or OpenAI image models.

// @contact.name FusionFlow Team
// @contact.url https://github.com/BaSui01/fusionflow

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/fusionflow/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "fusionflow",
	Short: "FusionFlow - instruction guided image fusion service",
	Long: `fusionflow combines a text instruction with an optional base image and an
optional secondary image, and asks one of the configured engines (flux,
gemini, openai) for a new image.

Configuration is read from defaults, then the YAML file given by --config,
then FUSIONFLOW_* environment variables.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file (YAML)")
}

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig 按 默认值 → YAML → 环境变量 的顺序加载并校验配置
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Flags().GetString("config")

	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, path, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, path, nil
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

// initLogger 构建 logger，返回的 AtomicLevel 可在配置重载时调整级别
func initLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel) {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             level,
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger, level
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
