package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/service-chatbot-go/internal/config"
	"github.com/service-chatbot-go/internal/i18n"
	"github.com/service-chatbot-go/internal/middleware"
	"github.com/service-chatbot-go/internal/models"
	"github.com/service-chatbot-go/internal/services/cache"
	"github.com/service-chatbot-go/internal/services/gateway"
	"github.com/service-chatbot-go/internal/session"
	"github.com/service-chatbot-go/pkg/logger"
	"github.com/sirupsen/logrus"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	// Load .env file if exists
	if err := godotenv.Load(*envFile); err != nil {
		// It's okay if .env doesn't exist
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithField("server", cfg.Server.BaseURL).Info("Starting chatbot client")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize i18n
	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	// Initialize metrics
	metrics := middleware.NewMetrics()

	// Start metrics server if enabled
	if cfg.Monitoring.Metrics.Enabled {
		go func() {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")

			if err := middleware.StartMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	// Initialize services
	cacheService := cache.NewCache(cfg, log)
	rateLimiter := middleware.NewRateLimiter(cfg, log)
	gatewayClient := gateway.NewClient(&cfg.Server, metrics, log)

	controller := session.NewController(cfg, gatewayClient, cacheService, rateLimiter, localizer, metrics, log)

	// Best-effort startup sync with the server
	if err := controller.RefreshCatalog(ctx); err != nil {
		log.WithError(err).Warn("Failed to fetch question catalog")
	}
	if err := controller.ReconcileTriviaStatus(ctx); err != nil {
		log.WithError(err).Warn("Failed to reconcile trivia status")
	}

	// Exit cleanly on Ctrl-C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Shutdown signal received")
		cancel()
		os.Exit(0)
	}()

	runLoop(ctx, controller, log)
}

// runLoop reads user input line by line and renders new messages after
// each handled action.
func runLoop(ctx context.Context, controller *session.Controller, log *logrus.Logger) {
	printMessages(controller.Timeline())
	rendered := len(controller.Timeline())

	scanner := bufio.NewScanner(os.Stdin)
	printPrompt(controller)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "/quit" || line == "/exit" {
			fmt.Println("Bye!")
			return
		}

		if err := dispatch(ctx, controller, line); err != nil {
			fmt.Printf("! %v\n", err)
		}

		timeline := controller.Timeline()
		if len(timeline) < rendered {
			// Log was cleared
			rendered = 0
		}
		printMessages(timeline[rendered:])
		rendered = len(timeline)

		printPrompt(controller)
	}

	if err := scanner.Err(); err != nil {
		log.WithError(err).Error("Input stream failed")
	}
}

// dispatch maps slash commands to explicit controller actions; anything
// else is submitted as conversational input.
func dispatch(ctx context.Context, controller *session.Controller, line string) error {
	switch {
	case line == "/chat", line == "/trivia", line == "/manage", line == "/help":
		mode := models.Mode(strings.TrimPrefix(line, "/"))
		if err := controller.SetMode(mode); err != nil {
			return err
		}
		if mode == models.ModeHelp {
			fmt.Println(controller.HelpText())
		}
		printMessages(controller.Messages(mode))
		return nil

	case line == "/start" || strings.HasPrefix(line, "/start "):
		count := 0
		if arg := strings.TrimSpace(strings.TrimPrefix(line, "/start")); arg != "" {
			// Unparsable counts fall back to the configured default.
			if n, err := strconv.Atoi(arg); err == nil {
				count = n
			}
		}
		return controller.StartTrivia(ctx, count)

	case line == "/end":
		return controller.EndTrivia(ctx)

	case strings.HasPrefix(line, "/add "):
		question, answer, ok := strings.Cut(strings.TrimPrefix(line, "/add "), "|")
		if !ok {
			return fmt.Errorf("usage: /add <question>|<answer>")
		}
		return controller.AddQuestion(ctx, question, answer)

	case strings.HasPrefix(line, "/remove "):
		return controller.RemoveQuestion(ctx, strings.TrimPrefix(line, "/remove "))

	case strings.HasPrefix(line, "/addtrivia "):
		parts := strings.Split(strings.TrimPrefix(line, "/addtrivia "), "|")
		if len(parts) != 6 {
			return fmt.Errorf("usage: /addtrivia <question>|<a>|<b>|<c>|<d>|<correct>")
		}
		return controller.AddTriviaQuestion(ctx, gateway.TriviaQuestionInput{
			Question:      strings.TrimSpace(parts[0]),
			OptionA:       strings.TrimSpace(parts[1]),
			OptionB:       strings.TrimSpace(parts[2]),
			OptionC:       strings.TrimSpace(parts[3]),
			OptionD:       strings.TrimSpace(parts[4]),
			CorrectAnswer: strings.TrimSpace(parts[5]),
		})

	case strings.HasPrefix(line, "/upload "):
		path := strings.TrimSpace(strings.TrimPrefix(line, "/upload "))
		contents, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		return controller.UploadQuestionSet(ctx, path, contents)

	case line == "/list":
		if err := controller.RefreshCatalog(ctx); err != nil {
			return err
		}
		for i, q := range controller.Snapshot().Catalog {
			fmt.Printf("%d. %s\n", i+1, q)
		}
		return nil

	case line == "/trivialist":
		questions, err := controller.TriviaCatalog(ctx)
		if err != nil {
			return err
		}
		for i, q := range questions {
			fmt.Printf("%d. %s\n", i+1, q)
		}
		return nil

	case line == "/clear":
		controller.ClearLog()
		return nil

	default:
		return controller.Submit(ctx, line)
	}
}

func printMessages(messages []models.Message) {
	for _, msg := range messages {
		prefix := "bot"
		if msg.Sender == models.SenderUser {
			prefix = "you"
		}
		fmt.Printf("[%s] %s\n", prefix, msg.Text)
	}
}

func printPrompt(controller *session.Controller) {
	snap := controller.Snapshot()
	if snap.Trivia.Active {
		fmt.Printf("%s %d/%d> ", snap.Mode, snap.Trivia.Score, snap.Trivia.TotalAnswered)
		return
	}
	fmt.Printf("%s> ", snap.Mode)
}
