package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/smart-edu-api/api/swagger"
	"github.com/noah-isme/smart-edu-api/internal/handler"
	"github.com/noah-isme/smart-edu-api/internal/middleware"
	"github.com/noah-isme/smart-edu-api/internal/models"
	"github.com/noah-isme/smart-edu-api/internal/repository"
	"github.com/noah-isme/smart-edu-api/internal/service"
	"github.com/noah-isme/smart-edu-api/pkg/cache"
	"github.com/noah-isme/smart-edu-api/pkg/config"
	"github.com/noah-isme/smart-edu-api/pkg/database"
	"github.com/noah-isme/smart-edu-api/pkg/export"
	"github.com/noah-isme/smart-edu-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/smart-edu-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/smart-edu-api/pkg/middleware/requestid"
	"github.com/noah-isme/smart-edu-api/pkg/storage"
)

// @title Smart Edu API
// @version 1.0.0
// @description Task management service for schools
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("redis connection failed", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	uploads, err := storage.NewUploadStore(cfg.Uploads.Dir)
	if err != nil {
		logr.Sugar().Fatalw("upload store init failed", "error", err)
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	classRepo := repository.NewClassRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, classRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
	})
	notificationSvc := service.NewNotificationService(notificationRepo, userRepo, validate, logr)
	statsSvc := service.NewStatsService(statsRepo, taskRepo, cacheRepo, metricsSvc, logr, cfg.Stats.CacheTTL)
	userSvc := service.NewUserService(userRepo, uploads, export.NewCSVExporter(), validate, logr)
	classSvc := service.NewClassService(classRepo, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, classRepo, validate, logr)
	taskSvc := service.NewTaskService(
		taskRepo, assignmentRepo, classRepo, userRepo,
		uploads, export.NewPDFExporter(), validate, logr,
		cfg.Uploads.TaskMaxBytes, cfg.Uploads.AllowedTaskExts,
	)
	taskSvc.SetMetrics(metricsSvc)
	submissionSvc := service.NewSubmissionService(
		submissionRepo, assignmentRepo, taskRepo, notificationSvc,
		uploads, validate, logr,
		cfg.Uploads.SubmissionMaxBytes, cfg.Uploads.AllowedSubmissionExts,
	)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, taskRepo, submissionRepo, uploads, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc, statsSvc)
	classHandler := handler.NewClassHandler(classSvc)
	subjectHandler := handler.NewSubjectHandler(subjectSvc)
	taskHandler := handler.NewTaskHandler(taskSvc, submissionSvc, statsSvc)
	studentHandler := handler.NewStudentHandler(assignmentSvc, submissionSvc, statsSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/register/teacher", authHandler.RegisterTeacher)
		auth.POST("/register/student", authHandler.RegisterStudent)

		authed := auth.Group("", middleware.JWT(authSvc))
		authed.POST("/logout", authHandler.Logout)
		authed.POST("/change-password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	admin := api.Group("/admin", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		admin.GET("/users", userHandler.List)
		admin.POST("/users", userHandler.Create)
		admin.GET("/users/:id", userHandler.Get)
		admin.GET("/export/users", userHandler.ExportCSV)
		admin.PUT("/users/:id", userHandler.Update)
		admin.DELETE("/users/:id", userHandler.Delete)
		admin.GET("/tasks", taskHandler.AdminList)
		admin.DELETE("/tasks/:id", taskHandler.AdminDelete)
		admin.GET("/stats", userHandler.Stats)
		admin.POST("/notifications", notificationHandler.Broadcast)
	}

	classes := api.Group("/classes", middleware.JWT(authSvc))
	{
		classes.GET("", classHandler.List)
		classes.GET("/:id", classHandler.Get)

		adminOnly := classes.Group("", middleware.RequireRoles(models.RoleAdmin))
		adminOnly.POST("", classHandler.Create)
		adminOnly.PUT("/:id", classHandler.Update)
		adminOnly.DELETE("/:id", classHandler.Delete)
	}

	subjects := api.Group("/subjects", middleware.JWT(authSvc))
	{
		subjects.GET("", subjectHandler.List)
		subjects.GET("/:id", subjectHandler.Get)

		adminOnly := subjects.Group("", middleware.RequireRoles(models.RoleAdmin))
		adminOnly.POST("", subjectHandler.Create)
		adminOnly.PUT("/:id", subjectHandler.Update)
		adminOnly.DELETE("/:id", subjectHandler.Delete)
	}

	teacher := api.Group("/teacher", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleTeacher))
	{
		teacher.GET("/dashboard", taskHandler.Dashboard)
		teacher.GET("/classes", classHandler.MyClasses)
		teacher.GET("/subjects", subjectHandler.MySubjects)
		teacher.PUT("/subjects", subjectHandler.SetMySubjects)
		teacher.GET("/tasks", taskHandler.List)
		teacher.POST("/tasks", taskHandler.Create)
		teacher.GET("/tasks/:id", taskHandler.Get)
		teacher.PUT("/tasks/:id", taskHandler.Update)
		teacher.DELETE("/tasks/:id", taskHandler.Delete)
		teacher.GET("/tasks/:id/progress", taskHandler.Progress)
		teacher.GET("/tasks/:id/progress/export", taskHandler.ProgressPDF)
		teacher.GET("/tasks/:id/file", taskHandler.DownloadTaskFile)
		teacher.GET("/assignments/:id/submission", taskHandler.GetSubmission)
		teacher.POST("/assignments/:id/grade", taskHandler.Grade)
		teacher.GET("/submissions/:id/file", taskHandler.DownloadSubmissionFile)
	}

	student := api.Group("/student", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleStudent))
	{
		student.GET("/assignments", studentHandler.ListAssignments)
		student.GET("/assignments/:id", studentHandler.GetAssignment)
		student.POST("/assignments/:id/start", studentHandler.StartAssignment)
		student.POST("/assignments/:id/submit", studentHandler.Submit)
		student.GET("/tasks/:id/file", studentHandler.DownloadTaskFile)
		student.GET("/progress", studentHandler.Progress)
	}

	notifications := api.Group("/notifications", middleware.JWT(authSvc))
	{
		notifications.GET("", notificationHandler.List)
		notifications.POST("", notificationHandler.Create)
		notifications.GET("/unread-count", notificationHandler.UnreadCount)
		notifications.POST("/read-all", notificationHandler.MarkAllRead)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
	}

	submissions := api.Group("/submissions", middleware.JWT(authSvc))
	{
		submissions.GET("/:id/file", taskHandler.DownloadSubmissionFile)
	}

	if cfg.Reminders.Enabled {
		reminderSvc := service.NewReminderService(assignmentRepo, cacheRepo, notificationRepo, logr, service.ReminderConfig{
			SweepInterval: cfg.Reminders.SweepInterval,
			Window:        cfg.Reminders.Window,
			Workers:       cfg.Reminders.Workers,
		})
		reminderSvc.Start(context.Background())
		defer reminderSvc.Stop()
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
