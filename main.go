package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civicgrid-be/config"
	"civicgrid-be/controllers"
	"civicgrid-be/engine"
	"civicgrid-be/routes"
	"civicgrid-be/store"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	zl, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()
	sugar := zl.Sugar()

	db := config.ConnectDB()
	if db == nil {
		sugar.Fatal("Failed to connect to MongoDB")
	}
	sugar.Info("MongoDB connection established")

	config.ConnectRedis()
	sugar.Info("Redis connection established")

	issueCol := config.GetCollection("issues")
	userCol := config.GetCollection("users")
	if err := store.EnsureIndexes(userCol, issueCol); err != nil {
		sugar.Fatalf("Failed to create indexes: %v", err)
	}

	lifecycle := engine.New(
		store.NewMongoIssueStore(issueCol),
		store.NewMongoAuthorityStore(userCol),
		sugar,
	)
	controllers.Init(lifecycle, sugar)

	// Background overdue refresh
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	interval := time.Duration(config.GetEnvInt("OVERDUE_REFRESH_MINUTES", 5)) * time.Minute
	go engine.NewOverdueWorker(lifecycle, sugar).Start(workerCtx, interval)

	r := gin.Default()

	routes.AuthRoutes(r)
	routes.IssueRoutes(r)
	routes.AuthorityRoutes(r)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	srv := &http.Server{
		Addr:    ":" + config.GetEnv("PORT", "8080"),
		Handler: r,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sugar.Infof("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	sugar.Info("Shutting down gracefully...")
	stopWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		sugar.Fatalf("Forced shutdown: %v", err)
	}
	sugar.Info("Server stopped")
}
