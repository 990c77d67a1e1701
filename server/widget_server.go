package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/FrenchMajesty/chat-widget/chat_widget"
	"github.com/FrenchMajesty/chat-widget/utils/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type sendMessageRequest struct {
	Text string `json:"text"`
}

// WidgetServer exposes a widget over HTTP: state snapshots, the user actions, an event stream
// and Prometheus metrics.
type WidgetServer struct {
	widget  *chat_widget.Widget
	hub     *EventHub
	metrics *Metrics
	logger  logger.Logger
	engine  *gin.Engine
}

// NewWidgetServer takes ownership of the widget's event channel.
func NewWidgetServer(widget *chat_widget.Widget, metrics *Metrics, l logger.Logger) *WidgetServer {
	l = logger.OrNoop(l)
	if metrics == nil {
		metrics = NewMetrics()
	}

	s := &WidgetServer{
		widget:  widget,
		hub:     NewEventHub(metrics, l),
		metrics: metrics,
		logger:  l,
		engine:  newEngine(l),
	}
	go s.hub.Run(widget.Events())

	s.setupRoutes()
	return s
}

func (s *WidgetServer) setupRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := s.engine.Group("/widget")
	{
		api.GET("/state", s.handleState)
		api.GET("/stats", s.handleStats)
		api.GET("/events", s.handleEvents)
		api.POST("/messages", s.handleSendMessage)
		api.POST("/retry", s.handleRetry)
		api.POST("/retry/cancel", s.handleCancelRetry)
		api.POST("/restart", s.handleRestart)
	}
}

func (s *WidgetServer) Handler() http.Handler {
	return s.engine
}

// Hub exposes the event fan-out, mainly for tests.
func (s *WidgetServer) Hub() *EventHub {
	return s.hub
}

func (s *WidgetServer) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.widget.View())
}

func (s *WidgetServer) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.widget.Stats())
}

func (s *WidgetServer) handleSendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := s.widget.SendMessageAsync(req.Text); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, s.widget.View())
}

func (s *WidgetServer) handleRetry(c *gin.Context) {
	if err := s.widget.Retry(); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, s.widget.View())
}

func (s *WidgetServer) handleCancelRetry(c *gin.Context) {
	s.widget.CancelAutoRetry()
	c.JSON(http.StatusOK, s.widget.View())
}

func (s *WidgetServer) handleRestart(c *gin.Context) {
	if err := s.widget.Restart(); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.widget.View())
}

func (s *WidgetServer) handleEvents(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	clientID := c.Query("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	events, unsubscribe := s.hub.Subscribe(clientID)
	defer unsubscribe()

	s.logger.Printf("[server] event stream client %s connected", clientID)

	c.SSEvent("connection", gin.H{
		"client_id":  clientID,
		"session_id": s.widget.SessionID(),
		"timestamp":  time.Now(),
	})
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(_ io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(event.Type), event)
			return true
		case <-ctx.Done():
			return false
		}
	})

	s.logger.Printf("[server] event stream client %s disconnected", clientID)
}

func (s *WidgetServer) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, chat_widget.ErrEmptyMessage):
		status = http.StatusBadRequest
	case errors.Is(err, chat_widget.ErrBusy), errors.Is(err, chat_widget.ErrNothingToRegenerate):
		status = http.StatusConflict
	case errors.Is(err, chat_widget.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
