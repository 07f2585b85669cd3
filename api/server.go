// Package api 管理与外部整合用的 HTTP 接口
package api

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"jellybot/execode"
	"jellybot/model"
	"jellybot/utils/database/stats"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ContentValidator 检查自动回复内容
type ContentValidator interface {
	Response(ctx context.Context, c model.Content) (model.Content, bool)
}

// StatsReader 频道统计查询
type StatsReader interface {
	Summary(ctx context.Context, channelID string, since time.Time) (*stats.ChannelSummary, error)
}

// Deps 聚合所有依赖，一次注入
type Deps struct {
	Identity  model.IdentityStore
	Channels  model.ChannelStore
	Profiles  model.ProfileStore
	AutoReply model.AutoReplyStore
	Execode   *execode.Queue
	Extra     model.ExtraSink
	Validator ContentValidator
	Stats     StatsReader
}

// Server API 服务
type Server struct {
	Deps
	router *gin.Engine
	now    model.Clock
}

type Option func(*Server)

func WithClock(now model.Clock) Option {
	return func(s *Server) { s.now = now }
}

const userKey = "api_user"

func NewServer(d Deps, opts ...Option) *Server {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.SetHTMLTemplate(template.Must(template.New("extra").Parse(extraPageTemplate)))
	s := &Server{Deps: d, router: r, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

// Engine 返回 gin 引擎，LINE webhook 之类的路由也挂在这里
func (s *Server) Engine() *gin.Engine { return s.router }

func (s *Server) registerRoutes() {
	s.router.GET("/page/extra/:id", s.extraPage)

	api := s.router.Group("/api", s.auth)

	api.POST("/auto_reply/add", handle(nil, s.addAutoReply))
	api.POST("/auto_reply/add_execode", handle(nil, s.addAutoReplyExecode))
	api.GET("/auto_reply/tag_pop", handle(nil, s.tagPopularity))
	api.GET("/auto_reply/validate", handle(nil, s.validateContent))

	api.POST("/execode/complete", handle(validateComplete, s.completeExecode))
	api.GET("/execode/list", handle(nil, s.listExecodes))

	api.POST("/channel/name_change", handle(nil, s.changeChannelName))
	api.POST("/channel/issue_register_execode", handle(nil, s.issueRegisterExecode))
	api.GET("/channel/data", handle(nil, s.channelData))
	api.GET("/channel/stats", handle(nil, s.channelStats))

	api.POST("/profile/attach", handle(nil, s.attachProfile))
	api.POST("/profile/detach", handle(nil, s.detachProfile))
	api.GET("/profile/perm", handle(nil, s.profilePermissions))
	api.GET("/profile/name", handle(nil, s.profileByName))
}

// auth 验证 Authorization: Bearer <token>
func (s *Server) auth(c *gin.Context) {
	token, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !found || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, &Response{Errors: map[string]string{"authorization": "missing bearer token"}})
		return
	}
	u, err := s.Identity.GetByAPIToken(c.Request.Context(), token)
	if err != nil {
		writeError(c, err)
		c.Abort()
		return
	}
	if u == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, &Response{Errors: map[string]string{"authorization": "invalid token"}})
		return
	}
	c.Set(userKey, u)
	c.Next()
}

func currentUser(c *gin.Context) *model.RootUser {
	if v, ok := c.Get(userKey); ok {
		return v.(*model.RootUser)
	}
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zap.L().Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// Run 监听 addr 直到 ctx 结束，然后优雅关闭
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("HTTP server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	zap.L().Info("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

// channelByToken 平台名称无效为 ErrValidation，频道不存在为 ErrNotFound
func (s *Server) channelByToken(ctx context.Context, platform, token string) (*model.Channel, error) {
	p, ok := model.ParsePlatform(platform)
	if !ok || p == model.PlatformUnknown {
		return nil, model.NewOpError("channel.lookup", model.ErrValidation, fmt.Errorf("unknown platform %q", platform))
	}
	ch, err := s.Channels.GetByToken(ctx, p, token)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, model.NewOpError("channel.lookup", model.ErrNotFound, fmt.Errorf("channel %s/%s", p, token))
	}
	return ch, nil
}

func (s *Server) channelByID(ctx context.Context, id string) (*model.Channel, error) {
	ch, err := s.Channels.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, model.NewOpError("channel.lookup", model.ErrNotFound, fmt.Errorf("channel %s", id))
	}
	return ch, nil
}
