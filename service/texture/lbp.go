// Package texture 计算局部二值模式（LBP）纹理特征并调用预训练分类器
package texture

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

const (
	// Bins LBP 直方图的桶数，覆盖 [0,256)
	Bins = 256
	// CanvasSize 分类前统一缩放的边长
	CanvasSize = 64

	histogramEpsilon = 1e-7
)

var (
	// ErrRegionTooSmall 区域小于 3x3，无法计算 LBP
	ErrRegionTooSmall = errors.New("region too small for LBP")
	// ErrCanvasSize 输入不是 CanvasSize x CanvasSize
	ErrCanvasSize = errors.New("texture canvas must be 64x64")
)

// neighborOffsets 从左上角开始顺时针，第 k 项对应编码的第 7-k 位
var neighborOffsets = [8]image.Point{
	{X: -1, Y: -1},
	{X: 0, Y: -1},
	{X: 1, Y: -1},
	{X: 1, Y: 0},
	{X: 1, Y: 1},
	{X: 0, Y: 1},
	{X: -1, Y: 1},
	{X: -1, Y: 0},
}

// Histogram 归一化的 LBP 直方图
type Histogram [Bins]float32

// Slice 返回分类器输入向量
func (h Histogram) Slice() []float32 {
	out := make([]float32, Bins)
	copy(out, h[:])
	return out
}

// ComputeLBP 计算 LBP 图像，输出尺寸为 (w-2)x(h-2)
//
// 邻居严格大于中心像素时对应位为 1。
func ComputeLBP(src *image.Gray) (*image.Gray, error) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return nil, ErrRegionTooSmall
	}

	lbp := image.NewGray(image.Rect(0, 0, w-2, h-2))
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			center := src.GrayAt(b.Min.X+x, b.Min.Y+y).Y
			var code uint8
			for k, off := range neighborOffsets {
				n := src.GrayAt(b.Min.X+x+off.X, b.Min.Y+y+off.Y).Y
				if n > center {
					code |= 1 << (7 - k)
				}
			}
			lbp.SetGray(x-1, y-1, color.Gray{Y: code})
		}
	}
	return lbp, nil
}

// ComputeHistogram 统计 LBP 编码并按总数归一化（分母加 epsilon）
func ComputeHistogram(lbp *image.Gray) Histogram {
	var counts [Bins]float64
	total := 0.0
	b := lbp.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			counts[lbp.GrayAt(x, y).Y]++
			total++
		}
	}

	var hist Histogram
	denom := total + histogramEpsilon
	for i, c := range counts {
		hist[i] = float32(c / denom)
	}
	return hist
}

// ToGray 转为 *image.Gray，原点移到 (0,0)
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// Features 计算已缩放画布的 LBP 直方图
//
// 缩放由调用方用 OpenCV 双线性插值完成，与训练分类器时的预处理一致。
func Features(canvas image.Image) (Histogram, error) {
	b := canvas.Bounds()
	if b.Empty() {
		return Histogram{}, ErrRegionTooSmall
	}
	if b.Dx() != CanvasSize || b.Dy() != CanvasSize {
		return Histogram{}, fmt.Errorf("%w: got %dx%d", ErrCanvasSize, b.Dx(), b.Dy())
	}
	lbp, err := ComputeLBP(ToGray(canvas))
	if err != nil {
		return Histogram{}, err
	}
	return ComputeHistogram(lbp), nil
}

// Classify 计算画布的 LBP 直方图并调用模型预测
func Classify(canvas image.Image, m Model) (int, error) {
	hist, err := Features(canvas)
	if err != nil {
		return 0, err
	}
	return m.Predict(hist.Slice())
}
