package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/dimasfr/splitbill/internal/auth"
	"github.com/dimasfr/splitbill/internal/bill"
	"github.com/dimasfr/splitbill/internal/extraction"
	"github.com/dimasfr/splitbill/internal/ocr"
	"github.com/dimasfr/splitbill/internal/storage"
	"github.com/dimasfr/splitbill/internal/store"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("splitbill")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "splitbill.db", "Database file path")
		jwtSecret   = fs.StringLong("jwt-secret", "", "Secret for signing access tokens")
		jwtTTL      = fs.DurationLong("jwt-ttl", time.Hour, "Access token lifetime")
		supabaseURL = fs.StringLong("supabase-url", "", "Supabase project base URL")
		supabaseKey = fs.StringLong("supabase-key", "", "Supabase service role key")
		bucket      = fs.StringLong("storage-bucket", "receipt-images", "Supabase storage bucket name")
		ocrKey      = fs.StringLong("ocr-key", "", "OCR.space API key (or set OCR_SPACE_API_KEY env var)")
		ocrLanguage = fs.StringLong("ocr-language", "ind", "Primary OCR language code")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-1.5-flash-latest", "Google Gemini model name")
		logLevel    = fs.StringLong("log-level", "info", "Log level: debug, info, warn, error")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("SPLITBILL"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	setupLogger(*logLevel)

	if *jwtSecret == "" {
		slog.Error("JWT secret is required. Set --jwt-secret flag or SPLITBILL_JWT_SECRET environment variable")
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := store.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize object storage
	slog.Info("Initializing object storage...", "bucket", *bucket)
	objectStorage, err := storage.NewSupabase(*supabaseURL, *supabaseKey, *bucket)
	if err != nil {
		slog.Error("Failed to initialize object storage", "error", err)
		os.Exit(1)
	}

	// Initialize OCR
	ocrAPIKey := *ocrKey
	if ocrAPIKey == "" {
		ocrAPIKey = os.Getenv("OCR_SPACE_API_KEY")
	}
	slog.Info("Initializing OCR...", "language", *ocrLanguage)
	recognizer, err := ocr.NewOCRSpace("", ocrAPIKey, *ocrLanguage)
	if err != nil {
		slog.Error("Failed to initialize OCR", "error", err)
		os.Exit(1)
	}

	// Initialize extraction
	geminiAPIKey := *geminiKey
	if geminiAPIKey == "" {
		geminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if geminiAPIKey == "" {
		slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
		os.Exit(1)
	}
	slog.Info("Initializing Gemini...", "model", *geminiModel)
	extractor, err := extraction.NewGemini(geminiAPIKey, *geminiModel)
	if err != nil {
		slog.Error("Failed to initialize Gemini", "error", err)
		os.Exit(1)
	}
	defer extractor.Close()

	// Initialize services
	authService := auth.NewService(db, auth.NewTokenManager(*jwtSecret, *jwtTTL))
	billService := bill.NewService(db, objectStorage, recognizer, extractor)

	// Initialize server
	server := bill.NewServer(authService, billService)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

func setupLogger(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
	})))
}
