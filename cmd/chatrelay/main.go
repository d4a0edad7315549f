package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/chatrelay/internal/profile"
	"github.com/hrygo/chatrelay/server"
	"github.com/hrygo/chatrelay/server/auth"
	"github.com/hrygo/chatrelay/store"
	"github.com/hrygo/chatrelay/store/cache"
	"github.com/hrygo/chatrelay/store/db"
)

const version = "0.1.0"

var (
	rootCmd = &cobra.Command{
		Use:   "chatrelay",
		Short: `A real-time chat backend that relays conversations to a language model with tool calling.`,
		Run: func(_ *cobra.Command, _ []string) {
			instanceProfile := loadProfile()
			setupLogger(instanceProfile)
			if err := instanceProfile.Validate(); err != nil {
				slog.Error("invalid profile", "error", err)
				os.Exit(1)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			dbDriver, err := db.NewDBDriver(instanceProfile)
			if err != nil {
				slog.Error("failed to create db driver", "error", err)
				os.Exit(1)
			}

			storeInstance := store.New(dbDriver, instanceProfile, newContextCache(ctx, instanceProfile))
			defer storeInstance.Close()
			if err := storeInstance.Migrate(ctx); err != nil {
				slog.Error("failed to migrate", "error", err)
				os.Exit(1)
			}

			s, err := server.NewServer(ctx, instanceProfile, storeInstance)
			if err != nil {
				slog.Error("failed to create server", "error", err)
				os.Exit(1)
			}

			printGreetings(instanceProfile)
			if err := s.Start(ctx); err != nil {
				slog.Error("server stopped with error", "error", err)
				os.Exit(1)
			}
		},
	}

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := viper.GetString("secret")
			if secret == "" {
				secret = server.DevSecret
			}
			userID, _ := cmd.Flags().GetInt32("user-id")
			username, _ := cmd.Flags().GetString("username")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			role := auth.RoleUser
			if admin, _ := cmd.Flags().GetBool("admin"); admin {
				role = auth.RoleAdmin
			}

			token, err := auth.GenerateAccessToken(userID, username, role, time.Now().Add(ttl), []byte(secret))
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8081)

	flags := rootCmd.PersistentFlags()
	flags.String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	flags.String("addr", "", "address of server")
	flags.Int("port", 8081, "port of server")
	flags.String("data", "", "data directory")
	flags.String("driver", "sqlite", "database driver (sqlite or postgres)")
	flags.String("dsn", "", "database source name (aka. DSN)")
	flags.String("secret", "", "secret used to verify access tokens")
	flags.String("llm-provider", "", "model provider (openai, deepseek, ollama, anthropic)")
	flags.String("llm-model", "", "model name")
	flags.Duration("model-timeout", 0, "bound on a single model call")
	flags.Int("max-message-length", 0, "maximum characters per user message")
	flags.Int("history-limit", 0, "number of prior turns sent to the model")
	flags.Int("rate-limit-per-hour", 0, "requests per user per rate window")
	flags.Duration("session-idle-timeout", 0, "idle time after which a session is deactivated")
	flags.Duration("cleanup-interval", 0, "interval between idle session sweeps")
	flags.String("redis-addr", "", "redis address for the shared context cache (optional)")
	flags.String("weather-api-key", "", "API key for the weather tool (optional)")
	flags.String("timezone", "", "IANA timezone for get_current_time (default: host zone)")
	flags.String("trusted-proxies", "", "comma-separated proxy CIDRs whose X-Forwarded-For is trusted")

	for _, name := range []string{
		"mode", "addr", "port", "data", "driver", "dsn", "secret",
		"llm-provider", "llm-model", "model-timeout",
		"max-message-length", "history-limit", "rate-limit-per-hour",
		"session-idle-timeout", "cleanup-interval",
		"redis-addr", "weather-api-key", "timezone", "trusted-proxies",
	} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("chatrelay")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	// The env name differs from the flag name.
	if err := viper.BindEnv("secret", "CHATRELAY_JWT_SECRET"); err != nil {
		panic(err)
	}

	tokenCmd.Flags().Int32("user-id", 1, "user id carried as the token subject")
	tokenCmd.Flags().String("username", "dev", "username carried in the token")
	tokenCmd.Flags().Duration("ttl", auth.AccessTokenDuration, "token lifetime")
	tokenCmd.Flags().Bool("admin", false, "grant the admin role (security and metrics endpoints)")
	rootCmd.AddCommand(tokenCmd)
}

// loadProfile reads flags and CHATRELAY_* variables through viper; settings
// without a flag (provider keys, base URLs) come from the environment.
func loadProfile() *profile.Profile {
	p := &profile.Profile{
		Mode:               viper.GetString("mode"),
		Addr:               viper.GetString("addr"),
		Port:               viper.GetInt("port"),
		Data:               viper.GetString("data"),
		Driver:             viper.GetString("driver"),
		DSN:                viper.GetString("dsn"),
		Version:            version,
		Secret:             viper.GetString("secret"),
		LLMProvider:        viper.GetString("llm-provider"),
		LLMModel:           viper.GetString("llm-model"),
		ModelTimeout:       viper.GetDuration("model-timeout"),
		MaxMessageLength:   viper.GetInt("max-message-length"),
		HistoryLimit:       viper.GetInt("history-limit"),
		RateLimitPerHour:   viper.GetInt("rate-limit-per-hour"),
		SessionIdleTimeout: viper.GetDuration("session-idle-timeout"),
		CleanupInterval:    viper.GetDuration("cleanup-interval"),
		RedisAddr:          viper.GetString("redis-addr"),
		WeatherAPIKey:      viper.GetString("weather-api-key"),
		Timezone:           viper.GetString("timezone"),
		TrustedProxies:     viper.GetString("trusted-proxies"),
	}
	p.FromEnv()
	return p
}

func setupLogger(p *profile.Profile) {
	var handler slog.Handler
	if p.Mode == "prod" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	slog.SetDefault(slog.New(handler))
}

// newContextCache returns the in-process cache, fronting Redis when configured.
// An unreachable Redis is logged and skipped.
func newContextCache(ctx context.Context, p *profile.Profile) cache.Cache {
	l1 := cache.NewMemory(cache.MemoryConfig{Capacity: 1000, DefaultTTL: 10 * time.Minute})
	if p.RedisAddr == "" {
		return l1
	}

	cfg := cache.DefaultRedisConfig()
	cfg.Addr = p.RedisAddr
	cfg.Password = p.RedisPassword
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	l2, err := cache.NewRedis(pingCtx, cfg)
	if err != nil {
		slog.Warn("redis unavailable, using the in-process context cache only", "addr", p.RedisAddr, "error", err)
		return l1
	}
	slog.Info("context cache backed by redis", "addr", p.RedisAddr)
	return cache.NewTiered(l1, l2)
}

func printGreetings(p *profile.Profile) {
	bold := color.New(color.FgCyan, color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	fmt.Printf("%s %s\n", bold("chatrelay"), faint("v"+p.Version))
	fmt.Printf("Mode:      %s\n", p.Mode)
	fmt.Printf("Database:  %s\n", p.Driver)
	fmt.Printf("Model:     %s (%s)\n", p.LLMModel, p.LLMProvider)
	if !p.IsModelConfigured() {
		fmt.Println(color.YellowString("Model provider is not configured; replies will be apologies."))
	}
	if len(p.Addr) != 0 {
		fmt.Printf("Listening: http://%s:%d\n", p.Addr, p.Port)
	} else {
		fmt.Printf("Listening: http://localhost:%d\n", p.Port)
	}
	fmt.Printf("WebSocket: /api/v1/ws/chat?token=<access token>\n")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
