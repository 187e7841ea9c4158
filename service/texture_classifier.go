package service

import (
	"fmt"
	"image"

	"github.com/TIANLI0/SignKit/model"
	"github.com/TIANLI0/SignKit/service/texture"
	"github.com/TIANLI0/SignKit/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// TextureClassifier 对红色候选区域做 LBP 纹理分类
type TextureClassifier struct {
	proposer *RegionProposer
	model    texture.Model
}

func NewTextureClassifier(proposer *RegionProposer, m texture.Model) *TextureClassifier {
	return &TextureClassifier{proposer: proposer, model: m}
}

// Classify 返回被识别为限速标志的区域，顺序与候选区域一致
func (c *TextureClassifier) Classify(bgr gocv.Mat) ([]model.ClassifiedRegion, error) {
	return c.ClassifyBoxes(bgr, c.proposer.Propose(bgr))
}

// ClassifyBoxes 对给定候选框逐个分类，丢弃非标志区域
func (c *TextureClassifier) ClassifyBoxes(bgr gocv.Mat, boxes []model.Box) ([]model.ClassifiedRegion, error) {
	var regions []model.ClassifiedRegion
	for _, box := range boxes {
		response, err := c.classifyRegion(bgr, box)
		if err != nil {
			return nil, fmt.Errorf("classify region %v: %w", box.Rect(), err)
		}

		label, ok := model.LabelFromResponse(response)
		if !ok {
			utils.Named("detector").Debug("region rejected",
				zap.Any("box", box),
				zap.Int("response", response))
			continue
		}
		regions = append(regions, model.ClassifiedRegion{Box: box, Label: label})
	}
	return regions, nil
}

func (c *TextureClassifier) classifyRegion(bgr gocv.Mat, box model.Box) (int, error) {
	region := bgr.Region(box.Rect())
	defer region.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(region, &gray, gocv.ColorBGRToGray)

	canvas, err := textureCanvas(gray)
	if err != nil {
		return 0, err
	}
	return texture.Classify(canvas, c.model)
}

// textureCanvas 把灰度区域双线性缩放到 64x64，与分类器训练时的预处理相同
func textureCanvas(gray gocv.Mat) (image.Image, error) {
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(gray, &resized, image.Pt(texture.CanvasSize, texture.CanvasSize), 0, 0, gocv.InterpolationLinear)

	img, err := resized.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert region: %w", err)
	}
	return img, nil
}
