// Package config 提供 FusionFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序加载，
// 环境变量前缀默认为 FUSIONFLOW，例如 FUSIONFLOW_PROVIDERS_FLUX_API_KEY。
package config
