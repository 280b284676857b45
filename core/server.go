/*
HTTP surface for the AlphaBot agent.

The server wires the completion client, the tool registry, the
conversation store and the reasoning loop together and exposes them over
echo. The chat endpoint serves both delivery modes: newline-delimited
JSON events when the client asks for streaming, a single JSON response
otherwise. Session management endpoints read the same SQLite store the
loop persists into.
*/
package core

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms/openai"

	localtools "github.com/x-pai/AlphaBot/tools"
)

// Server holds the wired application components and the echo handlers.
type Server struct {
	agent         *Agent
	registry      *localtools.Registry
	store         *ConversationStore
	cancelManager *CancelManager
	config        *Config
	logger        *logrus.Logger
}

// NewServer creates a server instance with all dependencies initialized:
// the OpenAI-compatible completion client, the Alpha Vantage market data
// provider, the optional web search provider, the tool registry, the
// conversation store and the reasoning loop itself.
func NewServer(config *Config, logger *logrus.Logger) (*Server, error) {
	logger.Info("Starting server initialization")

	if config.OpenAIAPIKey == "" {
		logger.Error("OpenAI API key is required")
		return nil, fmt.Errorf("OpenAI API key is required. Set OPENAI_API_KEY environment variable")
	}

	opts := []openai.Option{
		openai.WithToken(config.OpenAIAPIKey),
		openai.WithModel(config.OpenAIModel),
	}
	if config.OpenAIBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.OpenAIBaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		logger.WithError(err).WithField("model", config.OpenAIModel).Error("Failed to initialize completion client")
		return nil, fmt.Errorf("failed to initialize completion client: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"model":   config.OpenAIModel,
		"baseURL": config.OpenAIBaseURL,
	}).Info("Completion client initialized")

	store, err := NewConversationStore(config.DatabasePath, logger)
	if err != nil {
		logger.WithError(err).WithField("path", config.DatabasePath).Error("Failed to open conversation store")
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}
	logger.WithField("path", config.DatabasePath).Info("Conversation store opened")

	registry := localtools.NewRegistry(config.ToolTimeout, logger)
	marketData := localtools.NewAlphaVantageClient(config.AlphaVantageKey, "", nil, logger)
	localtools.RegisterStockTools(registry, marketData)

	if config.SearchEnabled {
		search := localtools.NewMultiEngineSearch(localtools.SearchEngineConfig{
			Preferred:  config.SearchEngine,
			SerpAPIKey: config.SerpAPIKey,
			GoogleKey:  config.GoogleSearchKey,
			GoogleCX:   config.GoogleSearchCX,
			BingKey:    config.BingSearchKey,
		}, nil, logger)
		localtools.RegisterSearchTool(registry, search)
		logger.WithField("engine", config.SearchEngine).Info("Web search tool registered")
	}
	logger.WithField("toolCount", len(registry.List())).Info("Tool registry initialized")

	history := NewHistoryBuilder(store, config.HistoryLimit, nil, logger)
	client := NewLangChainClient(model, config, logger)
	agent := NewAgent(registry, client, store, history, store, config, logger, nil)

	logger.Info("Server initialization completed successfully")
	return &Server{
		agent:         agent,
		registry:      registry,
		store:         store,
		cancelManager: NewCancelManager(),
		config:        config,
		logger:        logger,
	}, nil
}

// Close releases server resources.
func (s *Server) Close() error {
	return s.store.Close()
}

// resolveUser extracts the caller identity from the request. Requests
// without an identity header share the anonymous user.
func resolveUser(c echo.Context) string {
	if user := c.Request().Header.Get("X-User-ID"); user != "" {
		return user
	}
	return "anonymous"
}

func (s *Server) handleChat(c echo.Context) error {
	requestLogger := s.logger.WithFields(logrus.Fields{
		"endpoint": "/api/agent/chat",
		"method":   "POST",
		"clientIP": c.RealIP(),
	})

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		requestLogger.WithError(err).Error("Failed to parse chat request body")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if req.Content == "" {
		requestLogger.Warn("Empty message content")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Message content is required"})
	}
	if req.Model != "" && !s.modelAllowed(req.Model) {
		requestLogger.WithField("model", req.Model).Warn("Requested model is not available")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Requested model is not available"})
	}

	req.UserID = resolveUser(c)
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	requestLogger = requestLogger.WithFields(logrus.Fields{
		"sessionID": req.SessionID,
		"userID":    req.UserID,
		"stream":    req.Stream,
	})
	requestLogger.Info("Received chat request")

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.RequestTimeout)
	defer func() {
		s.cancelManager.RemoveExecution(req.SessionID)
		cancel()
	}()
	s.cancelManager.AddExecution(req.SessionID, cancel)

	if req.Stream {
		return s.streamChat(ctx, c, req, cancel, requestLogger)
	}

	startTime := time.Now()
	resp, err := s.agent.Process(ctx, req)
	if err != nil {
		requestLogger.WithError(err).WithField("executionTime", time.Since(startTime)).Warn("Chat request did not complete")
		if resp.Error == "" {
			resp.Error = "The request was cancelled before completion."
		}
	} else {
		requestLogger.WithFields(logrus.Fields{
			"executionTime":  time.Since(startTime),
			"responseLength": len(resp.Content),
		}).Info("Chat request completed")
	}
	return c.JSON(http.StatusOK, resp)
}

// streamChat drains the loop's event channel into the response as
// newline-delimited JSON, flushing after every event. A write failure
// cancels the loop; a cancelled loop ends the stream without further
// events.
func (s *Server) streamChat(ctx context.Context, c echo.Context, req ChatRequest, cancel context.CancelFunc, requestLogger *logrus.Entry) error {
	c.Response().Header().Set(echo.HeaderContentType, "application/x-ndjson")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	emitter := NewStreamEmitter(s.config.StreamBufferSize, nil)
	done := make(chan error, 1)
	go func() {
		err := s.agent.Run(ctx, req, emitter)
		emitter.Close()
		done <- err
	}()

	for event := range emitter.Events() {
		if err := WriteNDJSON(c.Response(), event); err != nil {
			requestLogger.WithError(err).Warn("Client connection lost during streaming")
			cancel()
			break
		}
		c.Response().Flush()
	}

	if err := <-done; err != nil {
		requestLogger.WithError(err).Warn("Streaming chat request did not complete")
	} else {
		requestLogger.Info("Streaming chat request completed")
	}
	return nil
}

func (s *Server) modelAllowed(model string) bool {
	for _, candidate := range s.config.SelectableModels() {
		if candidate == model {
			return true
		}
	}
	return false
}

// handleListTools returns the registered tool catalog with the same
// JSON schema the model sees.
func (s *Server) handleListTools(c echo.Context) error {
	definitions := s.registry.List()
	catalog := make([]map[string]any, 0, len(definitions))
	for _, def := range definitions {
		catalog = append(catalog, map[string]any{
			"name":        def.Name,
			"description": def.Description,
			"parameters":  def.Schema(),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"tools": catalog,
		"count": len(catalog),
	})
}

// handleListModels returns the models clients may select per request.
func (s *Server) handleListModels(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"models":  s.config.SelectableModels(),
		"default": s.config.OpenAIModel,
	})
}

// handleListSessions returns the caller's sessions, most recently
// active first.
func (s *Server) handleListSessions(c echo.Context) error {
	userID := resolveUser(c)
	sessions, err := s.store.Sessions(userID)
	if err != nil {
		s.logger.WithError(err).WithField("userID", userID).Error("Failed to list sessions")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list sessions"})
	}
	if sessions == nil {
		sessions = []SessionSummary{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"sessions": sessions,
	})
}

// handleGetSession returns the full turn history of one session.
func (s *Server) handleGetSession(c echo.Context) error {
	sessionID := c.Param("sessionId")
	requestLogger := s.logger.WithFields(logrus.Fields{
		"endpoint":  "/api/agent/sessions/:sessionId",
		"sessionID": sessionID,
	})

	turns, err := s.store.SessionTurns(sessionID)
	if err != nil {
		requestLogger.WithError(err).Error("Failed to load session")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load session"})
	}
	if len(turns) == 0 {
		requestLogger.Warn("Session not found")
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Session not found"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"id":        sessionID,
		"turnCount": len(turns),
		"turns":     turns,
	})
}

// handleDeleteSession removes a session and all of its turns.
func (s *Server) handleDeleteSession(c echo.Context) error {
	sessionID := c.Param("sessionId")
	requestLogger := s.logger.WithFields(logrus.Fields{
		"endpoint":  "/api/agent/sessions/:sessionId",
		"method":    "DELETE",
		"sessionID": sessionID,
	})

	deleted, err := s.store.DeleteSession(sessionID)
	if err != nil {
		requestLogger.WithError(err).Error("Failed to delete session")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to delete session"})
	}
	if deleted == 0 {
		requestLogger.Warn("Session not found for deletion")
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Session not found"})
	}

	requestLogger.WithField("deletedTurns", deleted).Info("Session deleted successfully")
	return c.JSON(http.StatusOK, map[string]any{
		"message":   "Session deleted successfully",
		"sessionId": sessionID,
	})
}

// handleStopExecution cancels a running reasoning loop by its execution
// id, which for chat requests is the session id.
func (s *Server) handleStopExecution(c echo.Context) error {
	requestLogger := s.logger.WithFields(logrus.Fields{
		"endpoint": "/api/agent/stop",
		"method":   "POST",
		"clientIP": c.RealIP(),
	})

	var req StopRequest
	if err := c.Bind(&req); err != nil {
		requestLogger.WithError(err).Error("Failed to parse stop request body")
		return c.JSON(http.StatusBadRequest, StopResponse{
			Success: false,
			Message: "Invalid request format",
		})
	}
	if req.ExecutionID == "" {
		requestLogger.Error("Empty execution ID in stop request")
		return c.JSON(http.StatusBadRequest, StopResponse{
			Success: false,
			Message: "Execution ID is required",
		})
	}

	stopped := s.cancelManager.CancelExecution(req.ExecutionID)
	if !stopped {
		requestLogger.WithField("executionID", req.ExecutionID).Warn("Execution not found or already completed")
		return c.JSON(http.StatusNotFound, StopResponse{
			Success: false,
			Message: "Execution not found or already completed",
		})
	}

	requestLogger.WithField("executionID", req.ExecutionID).Info("Execution stopped successfully")
	return c.JSON(http.StatusOK, StopResponse{
		Success: true,
		Message: "Execution stopped successfully",
		Stopped: true,
	})
}

func (s *Server) handleStatus(c echo.Context) error {
	activeExecutions := s.cancelManager.ActiveExecutions()
	return c.JSON(http.StatusOK, map[string]any{
		"status":           "healthy",
		"toolCount":        len(s.registry.List()),
		"activeExecutions": activeExecutions,
		"executionCount":   len(activeExecutions),
	})
}

// RegisterRoutes registers all HTTP routes for the server.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	s.logger.Info("Registering routes")

	e.POST("/api/agent/chat", s.handleChat)
	e.GET("/api/agent/tools", s.handleListTools)
	e.GET("/api/agent/models", s.handleListModels)
	e.POST("/api/agent/stop", s.handleStopExecution)

	e.GET("/api/agent/sessions", s.handleListSessions)
	e.GET("/api/agent/sessions/:sessionId", s.handleGetSession)
	e.DELETE("/api/agent/sessions/:sessionId", s.handleDeleteSession)

	e.GET("/status", s.handleStatus)

	s.logger.Info("Routes registered successfully")
}
