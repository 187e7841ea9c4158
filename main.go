package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/TIANLI0/SignKit/config"
	"github.com/TIANLI0/SignKit/handler"
	"github.com/TIANLI0/SignKit/middleware"
	"github.com/TIANLI0/SignKit/service"
	"github.com/TIANLI0/SignKit/service/matching"
	"github.com/TIANLI0/SignKit/service/texture"
	"github.com/TIANLI0/SignKit/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	BuildID   = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

func main() {
	// 加载配置
	cfg := config.New()

	// 初始化日志
	if err := utils.InitLogger(cfg.Server.Mode); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Sync()

	utils.Logger.Info("starting SignKit server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("git_branch", GitBranch))

	// 初始化Redis
	redisService := service.NewRedisService(&cfg.Redis)
	ctx := context.Background()
	if err := redisService.Ping(ctx); err != nil {
		utils.Logger.Warn("redis connection failed, cache disabled", zap.Error(err))
	} else {
		utils.Logger.Info("redis connected successfully")
	}
	defer redisService.Close()

	// 加载分类模型
	svm, err := texture.LoadSVM(cfg.Classifier.ModelPath)
	if err != nil {
		utils.Logger.Fatal("failed to load classifier model",
			zap.String("path", cfg.Classifier.ModelPath), zap.Error(err))
	}

	// 构建参考库，必须在开始监听之前完成
	extractor := service.NewSIFTExtractor(cfg.Corpus.MaxFeatures)
	corpus, err := service.BuildCorpus(cfg.Corpus.Folder, extractor, &cfg.Corpus)
	if err != nil {
		utils.Logger.Fatal("failed to build reference corpus",
			zap.String("folder", cfg.Corpus.Folder), zap.Error(err))
	}
	defer corpus.Close()

	knn, err := service.NewKnnMatcher(&cfg.Matcher)
	if err != nil {
		utils.Logger.Fatal("invalid matcher config", zap.Error(err))
	}
	engine := matching.NewEngine(matching.Config{
		Ratio:          cfg.Matcher.Ratio,
		MinGoodMatches: cfg.Matcher.MinGoodMatches,
	}, knn)

	composer, err := service.NewComposer(&cfg.Compose, &cfg.Proposal)
	if err != nil {
		utils.Logger.Fatal("invalid compose config", zap.Error(err))
	}

	proposer := service.NewRegionProposer(&cfg.Proposal)
	detectionService := service.NewDetectionService(&cfg.Engine,
		service.NewReferenceMatchDetector(
			service.NewReferenceMatcher(corpus, extractor, engine), composer, cfg.Matcher.MinGoodMatches),
		service.NewTextureClassifyDetector(
			service.NewTextureClassifier(proposer, svm), composer),
	)

	// 初始化Handler
	detectHandler := handler.NewDetectHandler(cfg, redisService, detectionService)

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	// 创建路由
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())

	// 健康检查和版本信息
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"version": Version,
			"corpus":  corpus.Len(),
		})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"build_id":   BuildID,
			"git_commit": GitCommit,
			"git_branch": GitBranch,
		})
	})

	// API路由
	api := r.Group("/api/v1")
	{
		api.POST("/detect/:strategy", detectHandler.Detect)
		api.GET("/result/:strategy/:md5", detectHandler.GetResult)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	utils.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		utils.Logger.Fatal("failed to start server", zap.Error(err))
	}
}
