package service

import (
	"image"

	"github.com/TIANLI0/SignKit/config"
	"github.com/TIANLI0/SignKit/model"
	"gocv.io/x/gocv"
)

// RedRange 红色在 OpenCV HSV 空间的两段色相范围
type RedRange struct {
	LowHueMax     float64
	HighHueMin    float64
	HighHueMax    float64
	MinSaturation float64
	MinValue      float64
}

// RedMask 生成红色二值掩码，调用方负责关闭
func RedMask(bgr gocv.Mat, r RedRange) gocv.Mat {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(bgr, &hsv, gocv.ColorBGRToHSV)

	low := gocv.NewMat()
	defer low.Close()
	gocv.InRangeWithScalar(hsv,
		gocv.Scalar{Val1: 0, Val2: r.MinSaturation, Val3: r.MinValue, Val4: 0},
		gocv.Scalar{Val1: r.LowHueMax, Val2: 255, Val3: 255, Val4: 255},
		&low)

	high := gocv.NewMat()
	defer high.Close()
	gocv.InRangeWithScalar(hsv,
		gocv.Scalar{Val1: r.HighHueMin, Val2: r.MinSaturation, Val3: r.MinValue, Val4: 0},
		gocv.Scalar{Val1: r.HighHueMax, Val2: 255, Val3: 255, Val4: 255},
		&high)

	mask := gocv.NewMat()
	gocv.BitwiseOr(low, high, &mask)
	return mask
}

// RegionProposer 按红色线索提出候选区域
type RegionProposer struct {
	red        RedRange
	kernelSize int
	minArea    int
}

func NewRegionProposer(cfg *config.ProposalConfig) *RegionProposer {
	kernelSize := cfg.KernelSize
	if kernelSize <= 0 {
		kernelSize = 5
	}
	return &RegionProposer{
		red: RedRange{
			LowHueMax:     cfg.LowHueMax,
			HighHueMin:    cfg.HighHueMin,
			HighHueMax:    cfg.HighHueMax,
			MinSaturation: cfg.MinSaturation,
			MinValue:      cfg.MinValue,
		},
		kernelSize: kernelSize,
		minArea:    cfg.MinArea,
	}
}

// Propose 返回红色区域的外接矩形，按轮廓发现顺序，不做去重
func (p *RegionProposer) Propose(bgr gocv.Mat) []model.Box {
	if bgr.Empty() {
		return nil
	}

	mask := RedMask(bgr, p.red)
	defer mask.Close()

	// 闭运算填洞，开运算去噪
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: p.kernelSize, Y: p.kernelSize})
	defer kernel.Close()
	gocv.MorphologyEx(mask, &mask, gocv.MorphClose, kernel)
	gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, kernel)

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var boxes []model.Box
	for i := 0; i < contours.Size(); i++ {
		box := model.BoxFromRect(gocv.BoundingRect(contours.At(i)))
		if box.Area() < p.minArea {
			continue
		}
		boxes = append(boxes, box)
	}
	return boxes
}

// LargestRedRegion 返回面积最大的红色轮廓外接矩形，不做形态学处理
func LargestRedRegion(bgr gocv.Mat, r RedRange) (model.Box, bool) {
	mask := RedMask(bgr, r)
	defer mask.Close()

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	if contours.Size() == 0 {
		return model.Box{}, false
	}

	maxArea := -1.0
	maxIndex := 0
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area > maxArea {
			maxArea = area
			maxIndex = i
		}
	}
	return model.BoxFromRect(gocv.BoundingRect(contours.At(maxIndex))), true
}
