package service

import (
	"context"
	"fmt"
	"time"

	"github.com/TIANLI0/SignKit/config"
	"github.com/TIANLI0/SignKit/model"
	"github.com/TIANLI0/SignKit/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// DetectionService 负责解码图像、并发控制并分发到具体检测策略
type DetectionService struct {
	detectors    map[string]Detector
	semaphore    chan struct{}
	queueTimeout time.Duration
}

func NewDetectionService(cfg *config.EngineConfig, detectors ...Detector) *DetectionService {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	s := &DetectionService{
		detectors:    make(map[string]Detector, len(detectors)),
		semaphore:    make(chan struct{}, maxConcurrent),
		queueTimeout: time.Duration(cfg.QueueTimeout) * time.Second,
	}
	for _, d := range detectors {
		s.detectors[d.Name()] = d
	}
	return s
}

// Supports 是否注册了该策略
func (s *DetectionService) Supports(strategy string) bool {
	_, ok := s.detectors[strategy]
	return ok
}

// ProcessReferenceMatch 参考库匹配
func (s *DetectionService) ProcessReferenceMatch(ctx context.Context, data []byte) (*model.Outcome, error) {
	return s.Process(ctx, StrategyMatch, data)
}

// ProcessTextureClassification 纹理分类
func (s *DetectionService) ProcessTextureClassification(ctx context.Context, data []byte) (*model.Outcome, error) {
	return s.Process(ctx, StrategyTexture, data)
}

// Process 解码图片并运行指定策略
func (s *DetectionService) Process(ctx context.Context, strategy string, data []byte) (*model.Outcome, error) {
	detector, ok := s.detectors[strategy]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownStrategy, strategy)
	}

	// 并发控制
	if s.queueTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queueTimeout)
		defer cancel()
	}

	select {
	case s.semaphore <- struct{}{}:
		defer func() { <-s.semaphore }()
	case <-ctx.Done():
		return nil, model.ErrQueueFull
	}

	startTime := time.Now()

	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrUndecodableImage, err)
	}
	if img.Empty() {
		img.Close()
		return nil, model.ErrUndecodableImage
	}
	defer img.Close()

	outcome, err := detector.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("%s detection: %w", strategy, err)
	}
	outcome.Width = img.Cols()
	outcome.Height = img.Rows()

	utils.Named("engine").Info("image processed",
		zap.String("strategy", strategy),
		zap.Int("width", outcome.Width),
		zap.Int("height", outcome.Height),
		zap.Bool("detected", outcome.Detected),
		zap.Int("detections", len(outcome.Detections)),
		zap.String("reason", outcome.Reason),
		zap.Duration("duration", time.Since(startTime)))

	return &outcome, nil
}
