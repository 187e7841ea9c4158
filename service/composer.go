package service

import (
	"fmt"
	"image"
	"image/color"

	"github.com/TIANLI0/SignKit/config"
	"github.com/TIANLI0/SignKit/model"
	"github.com/lucasb-eyer/go-colorful"
	"gocv.io/x/gocv"
)

// Composer 绘制检测结果图
type Composer struct {
	keypointColor  color.RGBA
	matchBoxColor  color.RGBA
	regionBoxColor color.RGBA
	thickness      int
	fontScale      float64
	matchThickness int
	matchFontScale float64
	matchLabel     string
	labelOffset    int
	jpegQuality    int
	contourRange   RedRange
}

func NewComposer(cfg *config.ComposeConfig, proposal *config.ProposalConfig) (*Composer, error) {
	keypointColor, err := parseColor(cfg.KeypointColor)
	if err != nil {
		return nil, fmt.Errorf("keypoint_color: %w", err)
	}
	matchBoxColor, err := parseColor(cfg.MatchBoxColor)
	if err != nil {
		return nil, fmt.Errorf("match_box_color: %w", err)
	}
	regionBoxColor, err := parseColor(cfg.RegionBoxColor)
	if err != nil {
		return nil, fmt.Errorf("region_box_color: %w", err)
	}

	return &Composer{
		keypointColor:  keypointColor,
		matchBoxColor:  matchBoxColor,
		regionBoxColor: regionBoxColor,
		thickness:      cfg.Thickness,
		fontScale:      cfg.FontScale,
		matchThickness: cfg.MatchThickness,
		matchFontScale: cfg.MatchFontScale,
		matchLabel:     cfg.MatchLabel,
		labelOffset:    cfg.LabelOffset,
		jpegQuality:    cfg.JPEGQuality,
		contourRange: RedRange{
			LowHueMax:     proposal.LowHueMax,
			HighHueMin:    proposal.HighHueMin,
			HighHueMax:    proposal.HighHueMax,
			MinSaturation: cfg.ContourSatMin,
			MinValue:      cfg.ContourValMin,
		},
	}, nil
}

// parseColor 解析 "#rrggbb"
func parseColor(hex string) (color.RGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, err
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

// ComposeMatch 左侧为带关键点的参考图，右侧为标出最大红色轮廓的查询图
//
// 返回的 Mat 由调用方关闭；ok 表示查询图中找到了红色轮廓。
func (c *Composer) ComposeMatch(query gocv.Mat, entry *ReferenceEntry) (gocv.Mat, model.Box, bool) {
	refBGR := gocv.NewMat()
	defer refBGR.Close()
	if entry.Image.Channels() == 1 {
		gocv.CvtColor(entry.Image, &refBGR, gocv.ColorGrayToBGR)
	} else {
		entry.Image.CopyTo(&refBGR)
	}

	// 关键点坐标相对于 ROI，绘制时平移回整图
	offset := model.Point{X: float64(entry.ROI.XMin), Y: float64(entry.ROI.YMin)}
	refPanel := gocv.NewMat()
	defer refPanel.Close()
	gocv.DrawKeyPoints(refBGR, toGoCVKeypoints(entry.Keypoints, offset), &refPanel, c.keypointColor, gocv.DrawRichKeyPoints)

	queryPanel := query.Clone()
	defer queryPanel.Close()

	box, found := LargestRedRegion(query, c.contourRange)
	if found {
		gocv.Rectangle(&queryPanel, box.Rect(), c.matchBoxColor, c.matchThickness)
		gocv.PutText(&queryPanel, c.matchLabel, image.Point{X: box.XMin, Y: box.YMin - c.labelOffset},
			gocv.FontHersheySimplex, c.matchFontScale, c.matchBoxColor, 2)
	}

	return SideBySide(refPanel, queryPanel), box, found
}

// ComposeRegions 在原图副本上绘制分类框和标签
func (c *Composer) ComposeRegions(bgr gocv.Mat, regions []model.ClassifiedRegion) gocv.Mat {
	out := bgr.Clone()
	for _, r := range regions {
		gocv.Rectangle(&out, r.Box.Rect(), c.regionBoxColor, c.thickness)
		gocv.PutText(&out, r.Label.String(), image.Point{X: r.Box.XMin, Y: r.Box.YMin - c.labelOffset},
			gocv.FontHersheySimplex, c.fontScale, c.regionBoxColor, 2)
	}
	return out
}

// Encode 编码为 JPEG
func (c *Composer) Encode(img gocv.Mat) ([]byte, error) {
	quality := c.jpegQuality
	if quality <= 0 || quality > 100 {
		quality = 95
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return copyNative(buf), nil
}

// copyNative 复制出编码结果后释放原生缓冲区，GetBytes 只是原生内存的视图
func copyNative(buf *gocv.NativeByteBuffer) []byte {
	defer buf.Close()
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out
}

// SideBySide 把两张图缩放到相同高度（各自保持宽度）后横向拼接
func SideBySide(left, right gocv.Mat) gocv.Mat {
	height := max(left.Rows(), right.Rows())

	l := fitHeight(left, height)
	defer l.Close()
	r := fitHeight(right, height)
	defer r.Close()

	out := gocv.NewMat()
	gocv.Hconcat(l, r, &out)
	return out
}

func fitHeight(img gocv.Mat, height int) gocv.Mat {
	if img.Rows() == height {
		return img.Clone()
	}
	resized := gocv.NewMat()
	gocv.Resize(img, &resized, image.Point{X: img.Cols(), Y: height}, 0, 0, gocv.InterpolationLinear)
	return resized
}
