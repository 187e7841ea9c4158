package service

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/TIANLI0/SignKit/config"
	"github.com/TIANLI0/SignKit/model"
	"github.com/TIANLI0/SignKit/service/annotation"
	"github.com/TIANLI0/SignKit/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

var referenceExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// ReferenceEntry 参考标志：完整灰度图、标注框以及框内提取的特征
//
// Keypoints 的坐标相对于 ROI 裁剪区域。构建完成后只读。
type ReferenceEntry struct {
	Name        string
	Image       gocv.Mat
	ROI         model.Box
	Keypoints   []model.Keypoint
	Descriptors []model.Descriptor
}

// Corpus 有序的参考标志库，启动时构建一次
type Corpus struct {
	Entries []*ReferenceEntry
}

func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Entries)
}

// Descriptors 按条目顺序返回各参考的描述子
func (c *Corpus) Descriptors() [][]model.Descriptor {
	if c == nil {
		return nil
	}
	out := make([][]model.Descriptor, c.Len())
	for i, e := range c.Entries {
		out[i] = e.Descriptors
	}
	return out
}

// Close 释放参考图像
func (c *Corpus) Close() {
	if c == nil {
		return
	}
	for _, e := range c.Entries {
		e.Image.Close()
	}
	c.Entries = nil
}

// BuildCorpus 扫描参考目录，读取每张图片的 VOC 标注并提取 ROI 特征
//
// 只有目录无法读取时返回错误；单个条目的问题记录日志后跳过。
func BuildCorpus(folder string, extractor FeatureExtractor, cfg *config.CorpusConfig) (*Corpus, error) {
	dirEntries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("read reference folder: %w", err)
	}

	names := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		if referenceExts[strings.ToLower(filepath.Ext(de.Name()))] {
			names = append(names, de.Name())
		}
	}
	sort.Strings(names)

	startTime := time.Now()
	corpus := &Corpus{}
	for _, name := range names {
		entry, reason := loadReference(filepath.Join(folder, name), extractor, cfg.MinROISize)
		if entry == nil {
			utils.Named("corpus").Warn("reference skipped",
				zap.String("file", name),
				zap.String("reason", reason))
			continue
		}
		corpus.Entries = append(corpus.Entries, entry)
	}

	utils.Named("corpus").Info("reference corpus loaded",
		zap.String("folder", folder),
		zap.Int("candidates", len(names)),
		zap.Int("entries", corpus.Len()),
		zap.Duration("duration", time.Since(startTime)))

	return corpus, nil
}

// loadReference 返回 nil 和跳过原因表示该条目不可用
func loadReference(path string, extractor FeatureExtractor, minROI int) (*ReferenceEntry, string) {
	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	if img.Empty() {
		img.Close()
		return nil, "unreadable image"
	}

	box, err := annotation.ReadForImage(path)
	if err != nil {
		img.Close()
		return nil, err.Error()
	}

	roi := box.Clamp(img.Cols(), img.Rows())
	if roi.Width() < minROI || roi.Height() < minROI {
		img.Close()
		return nil, fmt.Sprintf("roi too small (%dx%d)", roi.Width(), roi.Height())
	}

	crop := img.Region(roi.Rect())
	kps, descs := extractor.Extract(crop)
	crop.Close()

	if len(descs) == 0 {
		img.Close()
		return nil, "no descriptors in roi"
	}

	return &ReferenceEntry{
		Name:        filepath.Base(path),
		Image:       img,
		ROI:         roi,
		Keypoints:   kps,
		Descriptors: descs,
	}, ""
}
