package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emilythestrangee/qa-forum/backend/internal/config"
	"github.com/emilythestrangee/qa-forum/backend/internal/database"
	"github.com/emilythestrangee/qa-forum/backend/internal/handlers"
	"github.com/emilythestrangee/qa-forum/backend/internal/middleware"
	"github.com/emilythestrangee/qa-forum/backend/internal/services"
)

type Server struct {
	cfg         config.Config
	db          database.Service
	handler     *handlers.Handler
	voteLimiter *middleware.KeyedLimiter
	logger      *slog.Logger
}

func New(cfg config.Config, db database.Service, svc *services.Services, logger *slog.Logger) *Server {
	return &Server{
		cfg:         cfg,
		db:          db,
		handler:     handlers.NewHandler(db.GetDB(), svc, cfg, logger),
		voteLimiter: middleware.NewKeyedLimiter(cfg.VoteRatePerMinute),
		logger:      logger,
	}
}

// NewServer creates and configures a new HTTP server
func NewServer(cfg config.Config, db database.Service, svc *services.Services, logger *slog.Logger) *http.Server {
	s := New(cfg, db, svc, logger)
	return &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(s.logger))

	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !allowsAll(s.cfg.CORSOrigins),
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		health := s.db.Health()
		status := http.StatusOK
		if health["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, health)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	secret := []byte(s.cfg.JWTSecret)
	h := s.handler

	api := r.Group("/api")
	{
		// Auth routes (public)
		api.POST("/register", h.Auth.Register)
		api.POST("/login", h.Auth.Login)

		// Public reads; a valid token adds the caller's own vote to totals.
		public := api.Group("")
		public.Use(middleware.OptionalAuth(secret))
		{
			public.GET("/questions", h.Question.GetQuestions)
			public.GET("/questions/unanswered", h.Question.GetUnanswered)
			public.GET("/questions/:id", h.Question.GetQuestion)
			public.GET("/questions/:id/answers", h.Answer.GetAnswers)

			public.GET("/votes/question/:id", h.Vote.QuestionTotals)
			public.GET("/votes/answer/:id", h.Vote.AnswerTotals)
			public.GET("/votes/top/questions", h.Vote.TopQuestions)
			public.GET("/votes/top/answers", h.Vote.TopAnswers)

			public.GET("/tags", h.Tag.GetTags)
			public.GET("/tags/popular", h.Tag.GetPopular)
			public.GET("/tags/search", h.Tag.Search)
			public.GET("/tags/stats", h.Tag.GetStats)
			public.GET("/tags/:name", h.Tag.GetTag)
			public.GET("/tags/:name/related", h.Tag.GetRelated)
			public.GET("/tags/:name/questions", h.Tag.GetQuestions)

			public.GET("/users/:id", h.User.GetUserProfile)
			public.GET("/users/:id/questions", h.User.GetUserQuestions)
			public.GET("/users/:id/answers", h.User.GetUserAnswers)
			public.GET("/users/:id/accepted", h.User.GetAcceptedAnswers)

			public.GET("/stats", h.Stats.GetSite)
			public.GET("/stats/users/top", h.Stats.GetTopUsers)
			public.GET("/stats/questions/top", h.Stats.GetTopQuestions)
		}

		// Protected routes (authentication required)
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(secret))
		{
			protected.GET("/me", h.Auth.GetMe)
			protected.PUT("/users/:id", h.User.UpdateUserProfile)

			protected.POST("/questions", h.Question.CreateQuestion)
			protected.PUT("/questions/:id", h.Question.UpdateQuestion)
			protected.DELETE("/questions/:id", h.Question.DeleteQuestion)
			protected.POST("/questions/:id/answers", h.Answer.CreateAnswer)

			protected.PUT("/answers/:id", h.Answer.UpdateAnswer)
			protected.DELETE("/answers/:id", h.Answer.DeleteAnswer)
			protected.POST("/answers/:id/accept", h.Answer.Accept)
			protected.DELETE("/answers/:id/accept", h.Answer.Unaccept)

			protected.GET("/votes/me", h.Vote.MyVotes)
			protected.POST("/votes", middleware.RateLimit(s.voteLimiter), h.Vote.Vote)
		}
	}

	return r
}

func allowsAll(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
