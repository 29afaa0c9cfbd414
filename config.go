package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
)

// Config holds server settings. Every flag can also be set through an
// EXPENSEMGR_* environment variable or a local .env file.
type Config struct {
	Addr               string
	DBDSN              string
	JWTSecret          string
	UploadDir          string
	OCRLang            string
	TessdataPrefix     string
	DefaultCurrency    string
	MaxUploadMB        int
	MaxConcurrentScans int
	ScanTimeout        time.Duration
	SkipMigrate        bool
	LogFormat          string
}

const devJWTSecret = "dev-insecure-secret-change"

// loadConfig parses args (without the program name) into a Config.
func loadConfig(args []string) (Config, error) {
	// .env never overrides variables that are already set
	_ = godotenv.Load()

	fs := ff.NewFlagSet("expensemgr")
	var (
		addr        = fs.StringLong("addr", ":8081", "HTTP listen address")
		dsn         = fs.StringLong("db-dsn", "", "Postgres DSN (falls back to DB_DSN)")
		secret      = fs.StringLong("jwt-secret", "", "HMAC secret for access tokens (falls back to JWT_SECRET)")
		uploadDir   = fs.StringLong("upload-dir", "", "directory for stored receipts (falls back to UPLOAD_BASE, then ./uploads)")
		lang        = fs.StringLong("ocr-lang", "eng", "Tesseract language code")
		tessdata    = fs.StringLong("tessdata-prefix", "", "custom tessdata directory")
		currency    = fs.StringLong("default-currency", "USD", "currency reported when a receipt shows none")
		maxUpload   = fs.IntLong("max-upload-mb", 10, "maximum receipt upload size in MB")
		maxScans    = fs.IntLong("max-concurrent-scans", runtime.NumCPU(), "receipt scans allowed to run at once")
		scanTimeout = fs.IntLong("scan-timeout-sec", 60, "per-scan timeout in seconds")
		skipMigrate = fs.BoolLong("skip-migrate", "do not run schema migrations on startup")
		logFormat   = fs.StringLong("log-format", "text", "log output format: text or json")
	)
	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("EXPENSEMGR")); err != nil {
		return Config{}, fmt.Errorf("%w\n%s", err, ffhelp.Flags(fs))
	}

	cfg := Config{
		Addr:               *addr,
		DBDSN:              firstNonEmpty(*dsn, os.Getenv("DB_DSN")),
		JWTSecret:          firstNonEmpty(*secret, os.Getenv("JWT_SECRET"), devJWTSecret),
		UploadDir:          firstNonEmpty(*uploadDir, os.Getenv("UPLOAD_BASE"), "uploads"),
		OCRLang:            *lang,
		TessdataPrefix:     *tessdata,
		DefaultCurrency:    strings.ToUpper(*currency),
		MaxUploadMB:        *maxUpload,
		MaxConcurrentScans: *maxScans,
		ScanTimeout:        time.Duration(*scanTimeout) * time.Second,
		SkipMigrate:        *skipMigrate,
		LogFormat:          *logFormat,
	}
	if v := strings.ToLower(os.Getenv("DB_AUTO_MIGRATE")); v == "false" || v == "0" || v == "no" {
		cfg.SkipMigrate = true
	}
	if cfg.MaxConcurrentScans <= 0 {
		cfg.MaxConcurrentScans = 1
	}
	if cfg.MaxUploadMB <= 0 {
		return Config{}, fmt.Errorf("max-upload-mb must be positive")
	}
	if cfg.ScanTimeout <= 0 {
		return Config{}, fmt.Errorf("scan-timeout-sec must be positive")
	}
	return cfg, nil
}

// newLogger builds the process logger from the configured format.
func newLogger(format string, w io.Writer) *slog.Logger {
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, nil))
	}
	return slog.New(slog.NewTextHandler(w, nil))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
