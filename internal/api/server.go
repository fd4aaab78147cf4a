package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	dex "github.com/dex-lang/dex-go"
	"github.com/dex-lang/dex-go/internal/session"
)

// Evaluator is the subset of session.Session the server needs.
type Evaluator interface {
	Evaluate(ctx context.Context, source string, names []string) (map[string]string, error)
	Signature(ctx context.Context, source, name string, cc dex.ExportCC) (*dex.Signature, error)
	RoundtripJaxpr(ctx context.Context, jaxpr string) (string, error)
}

type EvalRequest struct {
	Source string   `json:"source"`
	Names  []string `json:"names"`
}

type EvalResponse struct {
	Values map[string]string `json:"values"`
}

type SignatureRequest struct {
	Source string `json:"source"`
	Name   string `json:"name"`
	CC     string `json:"cc,omitempty"`
}

type SignatureResponse struct {
	Name      string           `json:"name"`
	CC        dex.ExportCC     `json:"cc"`
	Signature *dex.Signature   `json:"signature"`
	Raw       dex.RawSignature `json:"raw"`
}

type JaxprRequest struct {
	Jaxpr json.RawMessage `json:"jaxpr"`
}

type JaxprResponse struct {
	Jaxpr json.RawMessage `json:"jaxpr"`
}

// RequestIDHeader carries the request id echoed back on every response.
const RequestIDHeader = "X-Request-ID"

type ErrorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	ev     Evaluator
	logger *slog.Logger
}

func NewServer(ev Evaluator, logger *slog.Logger) *Server {
	return &Server{ev: ev, logger: logger}
}

// Handler returns a gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests)
	s.RegisterRoutes(r)
	return r
}

func (s *Server) RegisterRoutes(r gin.IRoutes) {
	r.GET("/healthz", s.handleHealth)
	r.POST("/api/eval", s.handleEval)
	r.POST("/api/signature", s.handleSignature)
	r.POST("/api/jaxpr/roundtrip", s.handleJaxprRoundtrip)
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	id := c.GetHeader(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Header(RequestIDHeader, id)
	c.Next()
	s.logger.Debug("request",
		"id", id,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleEval(c *gin.Context) {
	var req EvalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Warn("failed to decode payload", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid payload"})
		return
	}

	values, err := s.ev.Evaluate(c.Request.Context(), req.Source, req.Names)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, EvalResponse{Values: values})
}

func (s *Server) handleSignature(c *gin.Context) {
	var req SignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Warn("failed to decode payload", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid payload"})
		return
	}
	cc, err := dex.ParseExportCC(req.CC)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	sig, err := s.ev.Signature(c.Request.Context(), req.Source, req.Name, cc)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SignatureResponse{Name: req.Name, CC: cc, Signature: sig, Raw: sig.Raw()})
}

func (s *Server) handleJaxprRoundtrip(c *gin.Context) {
	var req JaxprRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Jaxpr) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid payload"})
		return
	}

	out, err := s.ev.RoundtripJaxpr(c.Request.Context(), string(req.Jaxpr))
	if err != nil {
		s.fail(c, err)
		return
	}
	if !json.Valid([]byte(out)) {
		s.logger.Error("runtime returned invalid jaxpr JSON")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "runtime returned invalid JSON"})
		return
	}
	c.JSON(http.StatusOK, JaxprResponse{Jaxpr: json.RawMessage(out)})
}

// fail maps an evaluator error onto a status: request problems are 400,
// failures reported by libDex are 422, and anything else is 500.
func (s *Server) fail(c *gin.Context, err error) {
	var dexErr *dex.Error
	var sigErr *dex.SignatureError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrInvalidRequest),
		errors.Is(err, dex.ErrNonASCII),
		errors.Is(err, dex.ErrInvalidJaxpr):
		status = http.StatusBadRequest
	case errors.As(err, &dexErr), errors.As(err, &sigErr):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}
