package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/TIANLI0/SignKit/config"
	"github.com/TIANLI0/SignKit/model"
	"github.com/TIANLI0/SignKit/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 结果图直接返回时附带的响应头
const (
	HeaderDetectionFound  = "X-Detection-Found"
	HeaderDetectionReason = "X-Detection-Reason"
)

// Processor 检测服务
type Processor interface {
	Supports(strategy string) bool
	Process(ctx context.Context, strategy string, data []byte) (*model.Outcome, error)
}

// RecordCache 检测记录缓存
type RecordCache interface {
	GetRecord(ctx context.Context, strategy, md5 string) (*model.DetectionRecord, error)
	SetRecord(ctx context.Context, strategy, md5 string, record *model.DetectionRecord) error
}

type DetectHandler struct {
	cfg       *config.Config
	cache     RecordCache
	processor Processor
}

func NewDetectHandler(cfg *config.Config, cache RecordCache, processor Processor) *DetectHandler {
	return &DetectHandler{
		cfg:       cfg,
		cache:     cache,
		processor: processor,
	}
}

// Detect 处理图片上传并运行检测
func (h *DetectHandler) Detect(c *gin.Context) {
	strategy := c.Param("strategy")
	if !h.processor.Supports(strategy) {
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Success: false,
			Message: fmt.Sprintf("不支持的检测方式: %s", strategy),
		})
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		// 兼容旧客户端的 file 字段
		file, err = c.FormFile("file")
	}
	if err != nil {
		utils.Logger.Error("failed to get uploaded file", zap.Error(err))
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "请上传图片文件",
			Error:   err.Error(),
		})
		return
	}

	// 验证文件大小
	if file.Size > h.cfg.Upload.MaxSize {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: fmt.Sprintf("文件大小超过限制 (%d MB)", h.cfg.Upload.MaxSize/(1024*1024)),
		})
		return
	}

	// 验证文件类型
	contentType := file.Header.Get("Content-Type")
	if !h.isAllowedType(contentType) {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "不支持的文件类型，仅支持 JPEG/PNG",
		})
		return
	}

	data, err := readUpload(file)
	if err != nil {
		utils.Logger.Error("failed to read file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "读取文件失败",
			Error:   err.Error(),
		})
		return
	}

	md5 := utils.BytesMD5(data)
	asImage := c.Query("format") == "image"

	utils.Logger.Info("file uploaded",
		zap.String("filename", file.Filename),
		zap.String("md5", md5),
		zap.String("strategy", strategy),
		zap.Int64("size", file.Size))

	ctx := c.Request.Context()

	cached, err := h.cache.GetRecord(ctx, strategy, md5)
	if err != nil {
		utils.Logger.Warn("failed to get cache", zap.Error(err))
	}

	if cached != nil {
		utils.Logger.Info("cache hit", zap.String("md5", md5), zap.String("strategy", strategy))
		h.respond(c, cached, asImage, "处理成功（来自缓存）")
		return
	}

	outcome, err := h.processor.Process(ctx, strategy, data)
	if err != nil {
		h.processError(c, err)
		return
	}

	record := newRecord(md5, strategy, outcome)

	// 保存到缓存
	if err := h.cache.SetRecord(ctx, strategy, md5, record); err != nil {
		utils.Logger.Warn("failed to set cache", zap.Error(err))
	}

	h.respond(c, record, asImage, "处理成功")
}

// GetResult 根据策略和 MD5 查询检测记录
func (h *DetectHandler) GetResult(c *gin.Context) {
	strategy := c.Param("strategy")
	md5 := c.Param("md5")
	if md5 == "" {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "MD5参数缺失",
		})
		return
	}

	result, err := h.cache.GetRecord(c.Request.Context(), strategy, md5)
	if err != nil {
		utils.Logger.Error("failed to get detection record", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "查询失败",
			Error:   err.Error(),
		})
		return
	}

	if result == nil {
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Success: false,
			Message: "未找到该图片的检测结果",
		})
		return
	}

	c.JSON(http.StatusOK, model.UploadResponse{
		Success: true,
		Message: "查询成功",
		Data:    result,
	})
}

func (h *DetectHandler) processError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrUndecodableImage):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "无法解析图片",
			Error:   err.Error(),
		})
	case errors.Is(err, model.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, model.ErrorResponse{
			Success: false,
			Message: "处理队列已满，请稍后重试",
		})
	default:
		utils.Logger.Error("failed to process image", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "图片处理失败",
			Error:   err.Error(),
		})
	}
}

func (h *DetectHandler) respond(c *gin.Context, record *model.DetectionRecord, asImage bool, message string) {
	if !asImage {
		c.JSON(http.StatusOK, model.UploadResponse{
			Success: true,
			Message: message,
			Data:    record,
		})
		return
	}

	img, err := base64.StdEncoding.DecodeString(record.Image)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "结果图解码失败",
			Error:   err.Error(),
		})
		return
	}
	c.Header(HeaderDetectionFound, strconv.FormatBool(record.Detected))
	if record.Reason != "" {
		c.Header(HeaderDetectionReason, record.Reason)
	}
	c.Data(http.StatusOK, "image/jpeg", img)
}

func (h *DetectHandler) isAllowedType(contentType string) bool {
	for _, allowed := range h.cfg.Upload.AllowedTypes {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}

func readUpload(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func newRecord(md5, strategy string, outcome *model.Outcome) *model.DetectionRecord {
	items := make([]model.DetectionItem, 0, len(outcome.Detections))
	for _, d := range outcome.Detections {
		items = append(items, model.NewDetectionItem(d))
	}
	return &model.DetectionRecord{
		MD5:        md5,
		Strategy:   strategy,
		Width:      outcome.Width,
		Height:     outcome.Height,
		Detected:   outcome.Detected,
		Reason:     outcome.Reason,
		Detections: items,
		Image:      base64.StdEncoding.EncodeToString(outcome.Image),
		Timestamp:  time.Now().Unix(),
	}
}
