package service

import (
	"fmt"

	"github.com/TIANLI0/SignKit/model"
	"github.com/TIANLI0/SignKit/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// 检测策略名称，同时作为 URL 参数和缓存键的一部分
const (
	StrategyMatch   = "match"
	StrategyTexture = "texture"
)

// 未检测到时的原因
const (
	ReasonNoQueryFeatures = "no features found in query image"
	ReasonEmptyCorpus     = "reference corpus is empty"
	ReasonNoGoodMatches   = "no good matches against any reference"
	ReasonNoRedRegion     = "no red candidate region"
	ReasonNoSign          = "no region classified as a sign"
)

// Detector 一种检测策略：输入 BGR 图像，输出结果图和检测列表
type Detector interface {
	Name() string
	Detect(bgr gocv.Mat) (model.Outcome, error)
}

// ReferenceMatchDetector 参考库特征匹配
type ReferenceMatchDetector struct {
	matcher  *ReferenceMatcher
	composer *Composer
	minGood  int
}

func NewReferenceMatchDetector(matcher *ReferenceMatcher, composer *Composer, minGoodMatches int) *ReferenceMatchDetector {
	return &ReferenceMatchDetector{matcher: matcher, composer: composer, minGood: minGoodMatches}
}

func (d *ReferenceMatchDetector) Name() string { return StrategyMatch }

func (d *ReferenceMatchDetector) Detect(bgr gocv.Mat) (model.Outcome, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(bgr, &gray, gocv.ColorBGRToGray)

	result, accepted, err := d.matcher.Match(gray)
	if err != nil {
		return model.Outcome{}, err
	}

	if !accepted {
		var reason string
		switch {
		case d.matcher.corpus.Len() == 0:
			reason = ReasonEmptyCorpus
		case result.QueryFeatures == 0:
			reason = ReasonNoQueryFeatures
		case result.Entry == nil:
			reason = ReasonNoGoodMatches
		default:
			reason = fmt.Sprintf("best reference %s has %d good matches, need more than %d",
				result.Entry.Name, result.Candidate.GoodMatchCount, d.minGood)
		}
		return unchanged(d.composer, bgr, reason)
	}

	utils.Named("detector").Info("reference matched",
		zap.String("reference", result.Entry.Name),
		zap.Int("good_matches", result.Candidate.GoodMatchCount))

	panel, _, found := d.composer.ComposeMatch(bgr, result.Entry)
	defer panel.Close()
	if !found {
		utils.Named("detector").Debug("no red contour in matched query image")
	}

	data, err := d.composer.Encode(panel)
	if err != nil {
		return model.Outcome{}, err
	}
	return model.Outcome{
		Image:      data,
		Detected:   true,
		Detections: []model.Detection{result.Detection()},
	}, nil
}

// TextureClassifyDetector 红色候选区域 + LBP 纹理分类
type TextureClassifyDetector struct {
	classifier *TextureClassifier
	composer   *Composer
}

func NewTextureClassifyDetector(classifier *TextureClassifier, composer *Composer) *TextureClassifyDetector {
	return &TextureClassifyDetector{classifier: classifier, composer: composer}
}

func (d *TextureClassifyDetector) Name() string { return StrategyTexture }

func (d *TextureClassifyDetector) Detect(bgr gocv.Mat) (model.Outcome, error) {
	boxes := d.classifier.proposer.Propose(bgr)
	if len(boxes) == 0 {
		return unchanged(d.composer, bgr, ReasonNoRedRegion)
	}

	regions, err := d.classifier.ClassifyBoxes(bgr, boxes)
	if err != nil {
		return model.Outcome{}, err
	}
	if len(regions) == 0 {
		return unchanged(d.composer, bgr, ReasonNoSign)
	}

	drawn := d.composer.ComposeRegions(bgr, regions)
	defer drawn.Close()

	data, err := d.composer.Encode(drawn)
	if err != nil {
		return model.Outcome{}, err
	}

	detections := make([]model.Detection, len(regions))
	for i, r := range regions {
		detections[i] = r
	}
	return model.Outcome{
		Image:      data,
		Detected:   true,
		Detections: detections,
	}, nil
}

// unchanged 未检测到时原样返回输入图像
func unchanged(c *Composer, bgr gocv.Mat, reason string) (model.Outcome, error) {
	data, err := c.Encode(bgr)
	if err != nil {
		return model.Outcome{}, err
	}
	return model.Outcome{Image: data, Reason: reason}, nil
}
