package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"booklending/internal/config"
	"booklending/internal/handlers"
	"booklending/internal/logging"
	"booklending/internal/models"
	"booklending/internal/repositories"
	"booklending/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Init(cfg.Log)

	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to get generic DB")
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.AutoMigrate(&models.Book{}, &models.BorrowRecord{}, &models.Review{}); err != nil {
		logging.Fatal().Err(err).Msg("failed to run migrations")
	}

	bookRepo := repositories.NewBookRepository(db)
	borrowRepo := repositories.NewBorrowRecordRepository(db)
	reviewRepo := repositories.NewReviewRepository(db)

	lendingService := services.NewLendingService(db, bookRepo, borrowRepo)
	catalogService := services.NewCatalogService(db, bookRepo)
	reviewService := services.NewReviewService(db, bookRepo, reviewRepo)
	recommendService := services.NewRecommendationService(
		bookRepo, borrowRepo,
		cfg.Recommend.DefaultLimit, cfg.Recommend.MaxLimit,
	)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), handlers.RequestLogger())

	handlers.RegisterRoutes(router, cfg.Auth.JWTSecret,
		lendingService, catalogService, reviewService, recommendService)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logging.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logging.Fatal().Err(err).Msg("server error")
	}
}
