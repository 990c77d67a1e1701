package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/FrenchMajesty/chat-widget/config"
	"github.com/FrenchMajesty/chat-widget/error_classifier"
	"github.com/FrenchMajesty/chat-widget/i18n"
	"github.com/FrenchMajesty/chat-widget/server"
	"github.com/FrenchMajesty/chat-widget/utils/logger"
	"github.com/FrenchMajesty/chat-widget/utils/parallel"
	"github.com/FrenchMajesty/chat-widget/utils/retry"
	"github.com/spf13/cobra"
)

func newRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:          "chat-widget",
		Short:        "Chat widget host with rate limit aware retries",
		Version:      version,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	root.PersistentFlags().String("config", "", "Path to a YAML config file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMockAPICmd())
	root.AddCommand(newClassifyCmd())
	return root
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the widget host API, plus the mock chat API when enabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("auto-retry") {
				cfg.RateLimit.AutoRetry, _ = cmd.Flags().GetBool("auto-retry")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			l := newLogger(cfg)
			defer l.Close()

			return serve(ctx, cfg, l)
		},
	}

	cmd.Flags().String("addr", "", "Widget host listen address (default from config)")
	cmd.Flags().Bool("auto-retry", false, "Retry rate limited requests automatically")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, l logger.Logger) error {
	counter := newTokenCounter(l)
	metrics := server.NewMetrics()

	widget, err := newWidget(cfg, newChatClient(cfg, l), counter, l)
	if err != nil {
		return err
	}
	defer widget.Close()

	widgetServer := server.NewWidgetServer(widget, metrics, l)
	l.Printf("[main] widget session %s, transport %s", widget.SessionID(), cfg.Transport.Kind)

	builder := parallel.NewBuilder().CancelOnError().
		Add("widget", func(ctx context.Context) (any, error) {
			return nil, server.ListenAndServe(ctx, cfg.Server.Addr, widgetServer.Handler(), l)
		})

	if cfg.MockAPI.Enabled {
		limiter, err := newLimiter(ctx, cfg, l)
		if err != nil {
			return err
		}
		defer limiter.Close()

		api := newMockAPI(cfg, limiter, counter, metrics, l)
		builder.Add("mock_api", func(ctx context.Context) (any, error) {
			return nil, server.ListenAndServe(ctx, cfg.MockAPI.Addr, api.Handler(), l)
		})
	}

	return builder.Run(ctx).Err()
}

func newMockAPICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mock-api",
		Short: "Run only the mock chat API that streams replies and enforces per-session budgets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.MockAPI.Addr = addr
			}
			if rpm, _ := cmd.Flags().GetInt("rpm"); rpm > 0 {
				cfg.MockAPI.Budget.RPM = rpm
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			l := newLogger(cfg)
			defer l.Close()

			limiter, err := newLimiter(ctx, cfg, l)
			if err != nil {
				return err
			}
			defer limiter.Close()

			api := newMockAPI(cfg, limiter, newTokenCounter(l), server.NewMetrics(), l)
			return server.ListenAndServe(ctx, cfg.MockAPI.Addr, api.Handler(), l)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default from config)")
	cmd.Flags().Int("rpm", 0, "Requests per minute allowed per session")
	return cmd
}

// classifyOutput is what the classify command prints.
type classifyOutput struct {
	Kind              error_classifier.ErrorKind `json:"kind"`
	StatusCode        int                        `json:"statusCode,omitempty"`
	RetryAfterSeconds *int                       `json:"retryAfterSeconds,omitempty"`
	Retriable         bool                       `json:"retriable"`
	BackoffSeconds    int                        `json:"backoffSeconds,omitempty"`
	Message           string                     `json:"message"`
}

func newClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify [message]",
		Short: "Classify a failure the way the widget does and print it as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetInt("status")
			retryAfter, _ := cmd.Flags().GetString("retry-after")
			body, _ := cmd.Flags().GetString("body")
			attempt, _ := cmd.Flags().GetInt("attempt")
			lang, _ := cmd.Flags().GetString("lang")

			message := ""
			if len(args) == 1 {
				message = args[0]
			}

			failure, err := buildFailure(message, status, retryAfter, body)
			if err != nil {
				return err
			}
			return writeClassification(cmd.OutOrStdout(), error_classifier.Classify(failure), attempt, lang)
		},
	}

	cmd.Flags().Int("status", 0, "HTTP status code of the failed response")
	cmd.Flags().String("retry-after", "", "Retry-After header value")
	cmd.Flags().String("body", "", "Response body")
	cmd.Flags().Int("attempt", 1, "Consecutive rate limit attempt used for the backoff preview")
	cmd.Flags().String("lang", "en", "Language of the printed message")
	return cmd
}

func buildFailure(message string, status int, retryAfter, body string) (error, error) {
	if status == 0 && body == "" {
		if message == "" {
			return nil, errors.New("provide a message, --status or --body")
		}
		return errors.New(message), nil
	}

	httpErr := &error_classifier.HTTPError{
		StatusCode: status,
		Message:    message,
		Body:       []byte(body),
	}
	if retryAfter != "" {
		httpErr.Header = http.Header{"Retry-After": []string{retryAfter}}
	}
	return httpErr, nil
}

func writeClassification(w io.Writer, classification *error_classifier.Classification, attempt int, lang string) error {
	labels := i18n.GetLabels(lang)

	out := classifyOutput{
		Kind:              classification.Kind,
		StatusCode:        classification.StatusCode,
		RetryAfterSeconds: classification.RetryAfterSeconds,
		Retriable:         classification.IsRetriable(),
		Message:           labels.Error,
	}

	if classification.Kind == error_classifier.ErrorKindRateLimit {
		delay := retry.CalculateBackoffDelay(attempt, retry.DefaultBaseDelay, retry.DefaultMaxDelay, classification.RetryAfter(), half)
		out.BackoffSeconds = retry.CountdownSeconds(delay)
		out.Message = labels.RateLimitError + " " + labels.Countdown(out.BackoffSeconds, false)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("write classification: %w", err)
	}
	return nil
}

// half picks the middle of the jitter range for the backoff preview.
func half() float64 { return 0.5 }
