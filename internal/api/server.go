package api

import (
	"fmt"
	"net/http"
	"strings"

	"phonefleet/orchestrator/internal/auth"
	"phonefleet/orchestrator/internal/control"
	"phonefleet/orchestrator/internal/lease"
	"phonefleet/orchestrator/internal/ops"
	"phonefleet/orchestrator/internal/registry"

	"github.com/gin-gonic/gin"
)

// Server wraps the REST API server
type Server struct {
	handler *Handler
	router  *gin.Engine
}

// NewServer creates a new API server. Every route except /health sits
// behind the bearer-token middleware (a no-op when token is empty).
func NewServer(reg *registry.Registry, leases *lease.Manager, scheduler *ops.Scheduler, clients func(endpoint string) *control.Client, token string) *Server {
	handler := NewHandler(reg, leases, scheduler, clients)

	// gin.New() instead of gin.Default(): the operation poll route is hit
	// in tight loops and would flood the default logger.
	router := gin.New()

	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		if param.Method == http.MethodGet && strings.HasPrefix(param.Path, "/operations/") {
			return ""
		}
		return fmt.Sprintf("[%s] %s %s %d %s %s \"%s\" %s\n",
			param.TimeStamp.Format("2006/01/02 - 15:04:05"),
			param.ClientIP,
			param.Method,
			param.StatusCode,
			param.Latency,
			param.Path,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/health", handler.Health)

	protected := router.Group("")
	protected.Use(auth.Middleware(token))
	{
		// Operations
		protected.POST("/operations", handler.CreateOperation)
		protected.GET("/operations/:id", handler.GetOperation)

		// Instances
		protected.GET("/instances", handler.ListInstances)
		protected.POST("/instances", handler.CreateInstance)
		protected.DELETE("/instances/:id", handler.DeleteInstance)

		// Leases
		protected.POST("/instances/:id/lease", handler.AcquireLease)
		protected.DELETE("/instances/:id/lease", handler.ReleaseLease)

		// Direct passthrough to one phone's control API
		phones := protected.Group("/phones/:id")
		{
			phones.GET("/status", handler.PhoneStatus)
			phones.GET("/health", handler.PhoneHealth)
			phones.POST("/input", handler.PhoneInput)
			phones.GET("/screenshot", handler.PhoneScreenshot)
			phones.POST("/jobs", handler.PhoneSubmitJob)
			phones.GET("/jobs/:job_id", handler.PhonePollJob)
		}
	}

	return &Server{
		handler: handler,
		router:  router,
	}
}

// GetRouter returns the router
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
