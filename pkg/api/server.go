package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cuemby/pcsd/pkg/auth"
	"github.com/cuemby/pcsd/pkg/events"
	"github.com/cuemby/pcsd/pkg/log"
	"github.com/cuemby/pcsd/pkg/metrics"
	"github.com/cuemby/pcsd/pkg/registry"
	"github.com/cuemby/pcsd/pkg/rpc"
	"github.com/cuemby/pcsd/pkg/storage"
	"github.com/cuemby/pcsd/pkg/types"
)

const (
	readHeaderTimeout = 10 * time.Second
	maxFormBytes      = 1 << 20
)

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	// CORSOrigins enables CORS for the listed console origins
	CORSOrigins []string
	// CertFile and KeyFile select TLS; both empty serves plain HTTP
	CertFile string
	KeyFile  string
	// LoginRate and LoginBurst throttle password attempts per client.
	// A zero LoginRate disables throttling.
	LoginRate  float64
	LoginBurst int
	// Peers and PeerAuth back /manage/auth. Both nil disables it.
	Peers    storage.PeerStore
	PeerAuth PeerAuthenticator
}

// Server exposes the dispatcher and the management endpoints over HTTPS
type Server struct {
	cfg        ServerConfig
	dispatcher *Dispatcher
	auth       *auth.Authenticator
	sessions   *auth.SessionManager
	registry   *registry.Registry
	events     *events.Broker
	engine     *gin.Engine

	mu   sync.Mutex
	http *http.Server
}

// NewServer builds the gin engine and routes
func NewServer(cfg ServerConfig, d *Dispatcher, sessions *auth.SessionManager) *Server {
	s := &Server{
		cfg:        cfg,
		dispatcher: d,
		auth:       d.auth,
		sessions:   sessions,
		registry:   d.registry,
		events:     d.events,
	}

	engine := gin.New()
	engine.Use(requestLogger())
	engine.Use(gin.CustomRecovery(recoverJSON))

	if len(cfg.CORSOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = cfg.CORSOrigins
		corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
		corsConfig.AllowCredentials = true
		engine.Use(cors.New(corsConfig))
	}

	engine.GET("/health", gin.WrapF(metrics.HealthHandler()))
	engine.GET("/ready", gin.WrapF(metrics.ReadyHandler()))
	engine.GET("/live", gin.WrapF(metrics.LivenessHandler()))
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	var throttle gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if cfg.LoginRate > 0 {
		throttle = newLoginLimiter(rate.Limit(cfg.LoginRate), cfg.LoginBurst).middleware()
	}

	engine.GET("/remote/:command", s.handleRemote)
	engine.POST("/remote/:command", throttle, s.handleRemote)

	engine.GET("/login", s.handleLoginPage)
	engine.POST("/login", throttle, s.handleLogin)
	engine.GET("/logout", s.handleLogout)

	manage := engine.Group("/manage")
	manage.Use(s.requireLogin)
	{
		manage.GET("/clusters", s.handleListClusters)
		manage.POST("/clusters", s.handleAddCluster)
		manage.POST("/clusters/remove", s.handleRemoveCluster)
		manage.GET("/auth", s.handleListPeers)
		manage.POST("/auth", throttle, s.handleAuthPeers)
		manage.POST("/auth/remove", s.handleRemovePeers)
	}

	s.engine = engine
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves on addr until Stop is called
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	logger := log.WithComponent("api")
	logger.Info().Str("addr", addr).Bool("tls", s.cfg.CertFile != "").Msg("pcsd listening")

	var err error
	if s.cfg.CertFile != "" && s.cfg.KeyFile != "" {
		err = srv.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
	} else {
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleRemote(c *gin.Context) {
	params, err := requestParams(c.Request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "true", "message": err.Error()})
		return
	}

	resp := s.dispatcher.Dispatch(c.Request.Context(), &Request{
		Command:    c.Param("command"),
		Post:       c.Request.Method == http.MethodPost,
		Params:     params,
		Token:      requestToken(c.Request),
		Session:    s.sessions.Load(c.Request),
		ClientAddr: c.ClientIP(),
		Browser:    wantsHTML(c.Request),
	})

	if resp.Location != "" {
		c.Redirect(resp.Status, resp.Location)
		return
	}
	c.Data(resp.Status, resp.ContentType, resp.Body)
}

func (s *Server) handleLoginPage(c *gin.Context) {
	if session := s.sessions.Load(c.Request); session != nil {
		c.JSON(http.StatusOK, gin.H{"username": session.Username, "login_time": session.LoginTime})
		return
	}
	c.String(http.StatusOK, "Login required. POST username and password to %s.\n", LoginPath)
}

func (s *Server) handleLogin(c *gin.Context) {
	username := c.PostForm("username")
	if !s.auth.Authenticate(username, c.PostForm("password")) {
		s.events.Publish(&events.Event{
			Type:     events.EventAuthFailed,
			Message:  "console login failed",
			Metadata: map[string]string{"user": username, "client": c.ClientIP()},
		})
		c.JSON(http.StatusUnauthorized, gin.H{"notauthorized": "true"})
		return
	}

	session := &auth.Session{Username: username, LoginTime: time.Now()}
	if err := s.sessions.Save(c.Writer, session); err != nil {
		logger := log.WithComponent("api")
		logger.Error().Err(err).Msg("Failed to save session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "true", "message": "failed to save session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": "true", "username": username})
}

func (s *Server) handleLogout(c *gin.Context) {
	s.sessions.Clear(c.Writer)
	c.Redirect(http.StatusSeeOther, LoginPath)
}

func (s *Server) requireLogin(c *gin.Context) {
	session := s.sessions.Load(c.Request)
	if s.auth.IsLoggedIn(session, requestToken(c.Request)) && s.auth.IsAuthorized(session) {
		c.Next()
		return
	}
	if wantsHTML(c.Request) {
		c.Redirect(http.StatusFound, LoginPath)
		c.Abort()
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"notauthorized": "true"})
}

func (s *Server) handleListClusters(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.Load())
}

func (s *Server) handleAddCluster(c *gin.Context) {
	cluster := types.Cluster{
		Name:  strings.TrimSpace(c.PostForm("name")),
		Nodes: splitList(c.PostFormArray("nodes")),
	}
	if err := s.registry.Add(cluster); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "true", "message": err.Error()})
		return
	}

	logger := log.WithCluster(cluster.Name)
	logger.Info().Strs("nodes", cluster.Nodes).Msg("cluster registered")
	s.events.Publish(&events.Event{
		Type:    events.EventClusterAdded,
		Message: "cluster registered",
		Metadata: map[string]string{
			"cluster": cluster.Name,
			"nodes":   strings.Join(cluster.Nodes, ","),
			"user":    s.caller(c),
		},
	})
	c.JSON(http.StatusOK, gin.H{"success": "true"})
}

func (s *Server) handleRemoveCluster(c *gin.Context) {
	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "true", "message": "cluster name is required"})
		return
	}

	removed, err := s.registry.RemoveCluster(name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "true", "message": err.Error()})
		return
	}
	if removed {
		logger := log.WithCluster(name)
		logger.Info().Msg("cluster removed")
		s.events.Publish(&events.Event{
			Type:     events.EventClusterRemoved,
			Message:  "cluster removed",
			Metadata: map[string]string{"cluster": name, "user": s.caller(c)},
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": "true", "removed": removed})
}

// requestParams merges query, form and flat JSON object parameters
func requestParams(r *http.Request) (url.Values, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		params := r.URL.Query()
		body, err := io.ReadAll(io.LimitReader(r.Body, maxFormBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
		if len(body) == 0 {
			return params, nil
		}
		var fields map[string]any
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		for k, v := range fields {
			switch val := v.(type) {
			case string:
				params.Add(k, val)
			case []any:
				for _, item := range val {
					params.Add(k, fmt.Sprint(item))
				}
			case nil:
			default:
				params.Add(k, fmt.Sprint(val))
			}
		}
		return params, nil
	}

	r.Body = http.MaxBytesReader(nil, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("invalid form: %w", err)
	}
	return r.Form, nil
}

// requestToken reads the bearer token header, falling back to the token cookie
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if cookie, err := r.Cookie(rpc.TokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func recoverJSON(c *gin.Context, recovered any) {
	logger := log.WithComponent("api")
	logger.Error().Interface("panic", recovered).Str("path", c.Request.URL.Path).Msg("Recovered from panic")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "true", "message": "internal server error"})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger := log.WithComponent("http")
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Str("client", c.ClientIP()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
