package main

import (
	"context"
	"encoding/base64"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Metantrop-IA/Mnemosynth/core"
	"github.com/Metantrop-IA/Mnemosynth/factories"
	"github.com/Metantrop-IA/Mnemosynth/server"
)

func main() {
	var (
		host  string
		port  int
		share bool
	)
	flag.StringVar(&host, "host", "", "bind address (overrides settings.json)")
	flag.IntVar(&port, "port", 0, "listen port (overrides settings.json)")
	flag.BoolVar(&share, "share", false, "bind to all interfaces so other machines can reach the demo")
	flag.Parse()

	logger := core.GetLogger()

	if err := godotenv.Load(".env.local"); err != nil {
		logger.With(map[string]any{"error": err}).Warn("No .env.local file found or failed to load")
	}

	settings := loadSettingsFromEnv()
	if host != "" {
		settings.Server.Host = host
	}
	if port != 0 {
		settings.Server.Port = port
	}
	if share {
		settings.Server.Share = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("Shutting down...")
		cancel()
	}()

	services := factories.BuildServices(settings, logger)
	if err := services.Init(ctx); err != nil {
		logger.With(map[string]any{"error": err}).Error("failed to initialize services")
		os.Exit(1)
	}
	defer services.Cleanup()

	srv := server.New(settings.Server.Addr(), services, settings.Session, logger)
	if err := srv.Run(ctx); err != nil && !server.IsClosed(err) {
		logger.With(map[string]any{"error": err}).Error("server failed")
		os.Exit(1)
	}
}

// loadSettingsFromEnv loads SettingsConfig from file or the SETTINGS_JSON_B64
// env var, and injects API keys from env vars.
func loadSettingsFromEnv() factories.SettingsConfig {
	var settings factories.SettingsConfig
	var err error

	if b64 := os.Getenv("SETTINGS_JSON_B64"); b64 != "" {
		data, decErr := base64.StdEncoding.DecodeString(b64)
		if decErr != nil {
			core.GetLogger().With(map[string]any{"error": decErr}).Error("failed to decode SETTINGS_JSON_B64")
			settings = factories.DefaultSettingsConfig()
		} else {
			settings, err = factories.SettingsConfigFromJSON(data)
			if err != nil {
				core.GetLogger().With(map[string]any{"error": err}).Error("failed to parse SETTINGS_JSON_B64")
				settings = factories.DefaultSettingsConfig()
			} else {
				core.GetLogger().Info("loaded settings from SETTINGS_JSON_B64")
			}
		}
	} else {
		settingsPath := getEnv("SETTINGS_PATH", "./settings.json")
		settings, err = factories.SettingsConfigFromFile(settingsPath)
		if err != nil {
			core.GetLogger().With(map[string]any{"path": settingsPath, "error": err}).Warn("failed to load settings, using defaults")
			settings = factories.DefaultSettingsConfig()
		}
	}

	settings.InjectAPIKeys(factories.APIKeys{
		OpenAI: getEnv("OPENAI_API_KEY", ""),
	})
	return settings
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
