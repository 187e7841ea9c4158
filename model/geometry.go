package model

import (
	"fmt"
	"image"
)

// Box 轴对齐边界框，半开区间 [XMin, XMax) x [YMin, YMax)
type Box struct {
	XMin int `json:"xmin"`
	YMin int `json:"ymin"`
	XMax int `json:"xmax"`
	YMax int `json:"ymax"`
}

// NewBox 创建边界框，要求 xmin < xmax 且 ymin < ymax
func NewBox(xmin, ymin, xmax, ymax int) (Box, error) {
	if xmin >= xmax || ymin >= ymax {
		return Box{}, fmt.Errorf("invalid box (%d,%d)-(%d,%d)", xmin, ymin, xmax, ymax)
	}
	return Box{XMin: xmin, YMin: ymin, XMax: xmax, YMax: ymax}, nil
}

// BoxFromRect 从 image.Rectangle 转换
func BoxFromRect(r image.Rectangle) Box {
	r = r.Canon()
	return Box{XMin: r.Min.X, YMin: r.Min.Y, XMax: r.Max.X, YMax: r.Max.Y}
}

// Clamp 将边界框裁剪到图像范围内，结果可能为空
func (b Box) Clamp(width, height int) Box {
	return Box{
		XMin: max(0, b.XMin),
		YMin: max(0, b.YMin),
		XMax: min(width, b.XMax),
		YMax: min(height, b.YMax),
	}
}

func (b Box) Width() int  { return b.XMax - b.XMin }
func (b Box) Height() int { return b.YMax - b.YMin }

// Area 面积，空框为 0
func (b Box) Area() int {
	if b.Empty() {
		return 0
	}
	return b.Width() * b.Height()
}

func (b Box) Empty() bool {
	return b.XMin >= b.XMax || b.YMin >= b.YMax
}

func (b Box) Rect() image.Rectangle {
	return image.Rect(b.XMin, b.YMin, b.XMax, b.YMax)
}

// Point 亚像素坐标
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Keypoint 特征点：位置、尺度、方向
type Keypoint struct {
	Point
	Size     float64 `json:"size"`
	Angle    float64 `json:"angle"`
	Response float64 `json:"response"`
	Octave   int     `json:"octave"`
}

// Descriptor 定长特征描述子（SIFT 为 128 维）
type Descriptor []float32
