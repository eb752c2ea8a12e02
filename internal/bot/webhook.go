package bot

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"tg-eventbot/internal/logger"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
)

// WebhookServer represents a webhook HTTP server
type WebhookServer struct {
	server   *http.Server
	certFile string
	keyFile  string
}

// Start starts the webhook server
func (ws *WebhookServer) Start() error {
	logger.Infof("Starting HTTP server on %s", ws.server.Addr)

	if ws.certFile != "" && ws.keyFile != "" {
		logger.Infof("Using TLS with cert: %s, key: %s", ws.certFile, ws.keyFile)
		return ws.server.ListenAndServeTLS(ws.certFile, ws.keyFile)
	}

	logger.Infof("WARNING: Running without TLS. Make sure you have a HTTPS proxy in front of this server")
	return ws.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (ws *WebhookServer) Shutdown(ctx context.Context) error {
	return ws.server.Shutdown(ctx)
}

// SetupWebhook configures and starts the webhook server
func SetupWebhook(ctx context.Context, bot *telego.Bot, webhookPoint, listenPort, debugPath, secretToken string, certFile, keyFile string) (*th.BotHandler, *WebhookServer, error) {
	if webhookPoint == "" {
		return nil, nil, fmt.Errorf("webhook endpoint is required")
	}

	if listenPort == "" {
		listenPort = "8443"
		logger.Infof("Using default listen port: %s", listenPort)
	}

	if (certFile == "" || keyFile == "") && !strings.HasPrefix(webhookPoint, "https://") {
		return nil, nil, fmt.Errorf("HTTPS configuration required: set cert_file and key_file in config or use a HTTPS proxy")
	}

	parsedURL, err := url.Parse(webhookPoint)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}

	webhookPath := parsedURL.Path
	if webhookPath == "" {
		webhookPath = "/webhook"
		logger.Infof("No path specified in webhook endpoint, using default path: %s", webhookPath)
	}

	logger.Infof("Setting webhook to: %s", webhookPoint)
	err = bot.SetWebhook(ctx, &telego.SetWebhookParams{
		URL:            webhookPoint,
		AllowedUpdates: []string{"message", "callback_query"},
		SecretToken:    secretToken,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set webhook: %w", err)
	}

	webhookInfo, err := bot.GetWebhookInfo(ctx)
	if err != nil {
		logger.Infof("Warning: Failed to get webhook info: %v", err)
	} else {
		logger.Infof("Webhook info: URL=%s, PendingUpdateCount=%d", webhookInfo.URL, webhookInfo.PendingUpdateCount)
		if webhookInfo.LastErrorDate > 0 {
			logger.Infof("Webhook last error: [%d] %s", webhookInfo.LastErrorDate, webhookInfo.LastErrorMessage)
		}
	}

	mux := http.NewServeMux()

	if debugPath != "" {
		mux.HandleFunc(debugPath, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)

			botUser, _ := bot.GetMe(r.Context())
			response := "Event bot webhook server is running\n\n"
			response += fmt.Sprintf("Bot username: %s\n", botUser.Username)
			response += fmt.Sprintf("Webhook endpoint: %s\n", webhookPoint)

			if info, err := bot.GetWebhookInfo(r.Context()); err == nil {
				response += fmt.Sprintf("Pending updates: %d\n", info.PendingUpdateCount)
				if info.LastErrorDate > 0 {
					response += fmt.Sprintf("Last error: %s\n", info.LastErrorMessage)
				}
			}

			w.Write([]byte(response))
		})
	}

	server := &http.Server{
		Addr:    "0.0.0.0:" + listenPort,
		Handler: mux,
	}

	updates, err := bot.UpdatesViaWebhook(ctx,
		telego.WebhookHTTPServeMux(mux, webhookPath, secretToken),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get updates channel: %w", err)
	}

	bh, err := th.NewBotHandler(bot, updates)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create bot handler: %w", err)
	}

	return bh, &WebhookServer{
		server:   server,
		certFile: certFile,
		keyFile:  keyFile,
	}, nil
}
