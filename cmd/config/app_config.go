package config

import (
	"Receiptly-Backend/internal/api/handlers"
	"Receiptly-Backend/internal/api/routes"
	"Receiptly-Backend/internal/middleware"
	"Receiptly-Backend/internal/utils"
	"Receiptly-Backend/internal/utils/storage"
	"Receiptly-Backend/pkg/jwt"
	"Receiptly-Backend/pkg/ocr"
	"Receiptly-Backend/pkg/parser"
	"Receiptly-Backend/pkg/receipt"
	"Receiptly-Backend/pkg/user"
	"fmt"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"
)

func NewApp(db *gorm.DB) (*fiber.App, error) {
	utils.InitValidator()
	app := fiber.New(fiber.Config{
		EnablePrintRoutes: true,
		BodyLimit:         10 * 1024 * 1024,
	})
	middlewares := middleware.NewMiddleware()
	validator := utils.Validate

	// setting up logging and limiter
	err := os.MkdirAll("./logs", os.ModePerm)
	if err != nil {
		log.Fatalf("error creating logs directory: %v", err)
	}
	file, err := os.OpenFile(
		"./logs/app.log",
		os.O_RDWR|os.O_CREATE|os.O_APPEND,
		0666,
	)
	if err != nil {
		log.Fatalf("error opening file: %v", err)
	}
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "UTC",
		Output:     file,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        10,
		Expiration: 1 * time.Second,
	}))

	// utils
	s3 := storage.NewAwsS3()

	// Repository
	userRepository := user.NewUserRepository(db)
	receiptRepository := receipt.NewReceiptRepository(db)

	// Service
	jwtService := jwt.NewJWTService()
	userService := user.NewUserService(userRepository, jwtService, s3)
	ocrService := ocr.NewOCRService(
		utils.GetConfig("VISION_API_ENDPOINT"),
		utils.GetConfig("VISION_API_KEY"),
	)
	receiptParser := parser.NewReceiptParser(
		fmt.Sprintf(
			"https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent",
			utils.GetConfig("GEMINI_MODEL"),
		),
		utils.GetConfig("GEMINI_API_KEY"),
	)
	receiptService := receipt.NewReceiptService(receiptRepository, s3, ocrService, receiptParser)

	// Handler
	userHandler := handlers.NewUserHandler(userService, validator)
	receiptHandler := handlers.NewReceiptHandler(receiptService, validator)

	// routes
	routesConfig := routes.Config{
		App:            app,
		UserHandler:    userHandler,
		ReceiptHandler: receiptHandler,
		Middleware:     middlewares,
		JWTService:     jwtService,
	}
	routesConfig.Setup()
	return app, nil
}
