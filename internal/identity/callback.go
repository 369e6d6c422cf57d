package identity

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"codearena/internal/common/http/middleware"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const callbackPath = "/callback"

// CallbackHandler completes an authorization-code redirect.
type CallbackHandler interface {
	HandleCallback(ctx context.Context, state, code string) error
}

// CallbackServer receives the OAuth redirect on a loopback address.
type CallbackServer struct {
	handler CallbackHandler
	engine  *gin.Engine
	srv     *http.Server
}

func NewCallbackServer(handler CallbackHandler) *CallbackServer {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.TraceContextMiddleware())

	s := &CallbackServer{handler: handler, engine: engine}
	engine.GET(callbackPath, s.callback)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *CallbackServer) Handler() http.Handler {
	return s.engine
}

// Start listens on addr until ctx is cancelled.
func (s *CallbackServer) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.IdentityProviderFailed, "listen on %s failed: %v", addr, err)
	}
	s.srv = &http.Server{Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "callback server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()
	logger.Info(ctx, "callback server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

func (s *CallbackServer) callback(c *gin.Context) {
	ctx := c.Request.Context()
	if providerErr := c.Query("error"); providerErr != "" {
		logger.Warn(ctx, "sign-in rejected by provider",
			zap.String("error", providerErr),
			zap.String("description", c.Query("error_description")))
		c.String(http.StatusBadRequest, "Sign-in failed: %s. You can close this window.", providerErr)
		return
	}

	err := s.handler.HandleCallback(ctx, c.Query("state"), c.Query("code"))
	if err != nil {
		logger.Warn(ctx, "sign-in callback failed", zap.Error(err))
		status := http.StatusBadGateway
		switch pkgerrors.GetCode(err) {
		case pkgerrors.SignInStateMismatch, pkgerrors.ValidationFailed:
			status = http.StatusBadRequest
		}
		c.String(status, "Sign-in failed: %s. You can close this window.", pkgerrors.GetCode(err).Message())
		return
	}
	c.String(http.StatusOK, "Signed in. You can close this window and return to the terminal.")
}
