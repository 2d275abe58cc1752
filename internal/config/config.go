package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
	"github.com/Firdavs28033/tg-monitoring-back/internal/logger"
)

// ErrConfiguration 配置无效
var ErrConfiguration = errors.New("configuration error")

// Config 应用程序配置
type Config struct {
	LogLevel string

	MongoURI          string        `validate:"required"`
	MongoDBName       string        `validate:"required"`
	MongoTimeout      time.Duration `validate:"gt=0"`
	MongoTransactions bool          // 副本集才支持事务

	AccountSlots int    `validate:"gte=1"` // 读取 API_ID_1..API_ID_n
	AccountsDir  string `validate:"required"`
	SessionDir   string `validate:"required"`
	MediaDir     string `validate:"required"`

	BatchSize             int           `validate:"gte=1"`
	HistoryPageSize       int           `validate:"gte=1,lte=100"`
	HistoryPagesPerSecond int           `validate:"gte=0"` // 0 不限速
	ResolveCooldown       time.Duration `validate:"gte=0"`
	GroupDelay            time.Duration `validate:"gte=0"`
	FlushRetries          int           `validate:"gte=0"`
	FlushRetryDelay       time.Duration `validate:"gte=0"`
	BackfillFullRescan    bool
	LiveQueueSize         int `validate:"gte=1"`

	AnalyticsInterval time.Duration // 0 关闭统计报告
	AnalyticsTop      int           `validate:"gte=1"`

	HTTPAddr    string // 为空时不启动只读 API
	BotToken    string // 与 AdminChatID 同时设置时发送通知
	AdminChatID int64

	Accounts []models.Account `validate:"-"`
}

// NotifierEnabled 是否配置了管理员通知
func (c *Config) NotifierEnabled() bool {
	return c.BotToken != "" && c.AdminChatID != 0
}

// Validate 校验配置，账号凭证不在这里校验（不完整的账号在启动时跳过）
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// setDefaults 默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("mongo_db_name", "tg_monitoring")
	v.SetDefault("mongo_timeout", 10*time.Second)
	v.SetDefault("mongo_transactions", true)
	v.SetDefault("account_slots", 2)
	v.SetDefault("accounts_dir", "accounts")
	v.SetDefault("session_dir", "sessions")
	v.SetDefault("media_dir", "media")
	v.SetDefault("batch_size", 100)
	v.SetDefault("history_page_size", 100)
	v.SetDefault("history_pages_per_second", 2)
	v.SetDefault("resolve_cooldown", time.Second)
	v.SetDefault("group_delay", time.Second)
	v.SetDefault("flush_retries", 3)
	v.SetDefault("flush_retry_delay", 2*time.Second)
	v.SetDefault("backfill_full_rescan", false)
	v.SetDefault("live_queue_size", 256)
	v.SetDefault("analytics_interval", 5*time.Minute)
	v.SetDefault("analytics_top", 5)
	v.SetDefault("http_addr", "")
	v.SetDefault("bot_token", "")
	v.SetDefault("admin_chat_id", 0)
}

// Load 加载配置：默认值 → 配置文件（可选） → 环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: failed to read config file %s: %v", ErrConfiguration, path, err)
		}
	}

	cfg := &Config{
		LogLevel:              v.GetString("log_level"),
		MongoURI:              v.GetString("mongo_uri"),
		MongoDBName:           v.GetString("mongo_db_name"),
		MongoTimeout:          v.GetDuration("mongo_timeout"),
		MongoTransactions:     v.GetBool("mongo_transactions"),
		AccountSlots:          v.GetInt("account_slots"),
		AccountsDir:           v.GetString("accounts_dir"),
		SessionDir:            v.GetString("session_dir"),
		MediaDir:              v.GetString("media_dir"),
		BatchSize:             v.GetInt("batch_size"),
		HistoryPageSize:       v.GetInt("history_page_size"),
		HistoryPagesPerSecond: v.GetInt("history_pages_per_second"),
		ResolveCooldown:       v.GetDuration("resolve_cooldown"),
		GroupDelay:            v.GetDuration("group_delay"),
		FlushRetries:          v.GetInt("flush_retries"),
		FlushRetryDelay:       v.GetDuration("flush_retry_delay"),
		BackfillFullRescan:    v.GetBool("backfill_full_rescan"),
		LiveQueueSize:         v.GetInt("live_queue_size"),
		AnalyticsInterval:     v.GetDuration("analytics_interval"),
		AnalyticsTop:          v.GetInt("analytics_top"),
		HTTPAddr:              v.GetString("http_addr"),
		BotToken:              v.GetString("bot_token"),
		AdminChatID:           v.GetInt64("admin_chat_id"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	cfg.Accounts = loadAccounts(v, cfg.AccountSlots, cfg.AccountsDir)
	return cfg, nil
}

// loadAccounts 读取 acc_1..acc_n 的凭证和群组列表
func loadAccounts(v *viper.Viper, slots int, dir string) []models.Account {
	accounts := make([]models.Account, 0, slots)
	for n := 1; n <= slots; n++ {
		name := fmt.Sprintf("acc_%d", n)
		log := logger.Account(name)

		acc := models.Account{
			Name:     name,
			AppHash:  strings.TrimSpace(v.GetString(fmt.Sprintf("api_hash_%d", n))),
			Phone:    strings.TrimSpace(v.GetString(fmt.Sprintf("phone_%d", n))),
			Password: v.GetString(fmt.Sprintf("password_%d", n)),
		}

		if raw := strings.TrimSpace(v.GetString(fmt.Sprintf("api_id_%d", n))); raw != "" {
			id, err := strconv.Atoi(raw)
			if err != nil {
				log.Warnf("Invalid API_ID_%d %q: %v", n, raw, err)
			} else {
				acc.AppID = id
			}
		}

		groups, err := LoadGroups(dir, name)
		if err != nil {
			log.Warnf("No groups loaded: %v", err)
		}
		acc.Groups = groups

		accounts = append(accounts, acc)
	}
	return accounts
}

// LoadGroups 读取 <dir>/<name>.txt，每行一个群组标识
// 空行和 # 注释跳过，无法解析的行记录警告
func LoadGroups(dir, name string) ([]models.GroupRef, error) {
	path := filepath.Join(dir, name+".txt")
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open groups file: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read groups file %s: %w", path, err)
	}

	refs, errs := models.ParseGroupRefs(lines)
	for _, parseErr := range errs {
		logger.Account(name).Warnf("Skipping group identifier: %v", parseErr)
	}
	if len(refs) == 0 {
		logger.Account(name).Warnf("Groups file %s is empty", path)
	}
	return refs, nil
}
