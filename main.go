package main

import (
	"fmt"
	"log/slog"
	"os"

	"expensemgr/pkg/ocr"

	"github.com/gin-gonic/gin"
)

var (
	cfg       Config
	jwtSecret []byte
	logger    *slog.Logger
)

func main() {
	args := os.Args[1:]
	// `expensemgr migrate` runs AutoMigrate and seeding then exits.
	migrateOnly := len(args) > 0 && args[0] == "migrate"
	if migrateOnly {
		args = args[1:]
	}

	var err error
	cfg, err = loadConfig(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger = newLogger(cfg.LogFormat, os.Stderr)
	slog.SetDefault(logger)
	jwtSecret = []byte(cfg.JWTSecret)
	if cfg.JWTSecret == devJWTSecret {
		logger.Warn("JWT secret not configured, using development default")
	}

	if migrateOnly {
		cfg.SkipMigrate = false
		if err := initDB(cfg); err != nil {
			logger.Error("migration failed", "error", err)
			os.Exit(1)
		}
		fmt.Println("migration and seeding completed")
		return
	}

	if err := initDB(cfg); err != nil {
		logger.Error("database init failed", "error", err)
		os.Exit(1)
	}
	initScanner(cfg)

	r := gin.Default()
	setupRoutes(r)

	logger.Info("listening", "addr", cfg.Addr, "upload_dir", cfg.UploadDir, "ocr_lang", cfg.OCRLang)
	if err := r.Run(cfg.Addr); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// initScanner wires the receipt pipeline and the scan concurrency limit.
func initScanner(cfg Config) {
	p := ocr.NewPipeline(cfg.OCRLang, logger.With("component", "ocr"))
	p.Extractor.Engine = &ocr.TesseractEngine{TessdataPrefix: cfg.TessdataPrefix}
	receiptScanner = p
	scanSlots = make(chan struct{}, cfg.MaxConcurrentScans)
}
