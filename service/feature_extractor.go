package service

import (
	"sort"

	"github.com/TIANLI0/SignKit/model"
	"gocv.io/x/gocv"
)

// FeatureExtractor 在灰度图上提取关键点和描述子
type FeatureExtractor interface {
	Extract(gray gocv.Mat) ([]model.Keypoint, []model.Descriptor)
}

// SIFTExtractor 基于 OpenCV SIFT，按响应强度保留前 maxFeatures 个特征
type SIFTExtractor struct {
	maxFeatures int
}

func NewSIFTExtractor(maxFeatures int) *SIFTExtractor {
	return &SIFTExtractor{maxFeatures: maxFeatures}
}

// Extract 提取特征；图像为空或无特征时返回空切片
func (e *SIFTExtractor) Extract(gray gocv.Mat) ([]model.Keypoint, []model.Descriptor) {
	if gray.Empty() {
		return nil, nil
	}

	sift := gocv.NewSIFT()
	defer sift.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	kps, desc := sift.DetectAndCompute(gray, mask)
	defer desc.Close()

	if len(kps) == 0 || desc.Empty() || desc.Rows() != len(kps) {
		return nil, nil
	}

	order := make([]int, len(kps))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return kps[order[a]].Response > kps[order[b]].Response
	})
	if e.maxFeatures > 0 && len(order) > e.maxFeatures {
		order = order[:e.maxFeatures]
	}

	keypoints := make([]model.Keypoint, len(order))
	descriptors := make([]model.Descriptor, len(order))
	cols := desc.Cols()
	for i, idx := range order {
		kp := kps[idx]
		keypoints[i] = model.Keypoint{
			Point:    model.Point{X: kp.X, Y: kp.Y},
			Size:     kp.Size,
			Angle:    kp.Angle,
			Response: kp.Response,
			Octave:   kp.Octave,
		}
		d := make(model.Descriptor, cols)
		for c := 0; c < cols; c++ {
			d[c] = desc.GetFloatAt(idx, c)
		}
		descriptors[i] = d
	}

	return keypoints, descriptors
}

// toGoCVKeypoints 转换为 gocv 关键点并整体平移 offset，用于绘制
func toGoCVKeypoints(kps []model.Keypoint, offset model.Point) []gocv.KeyPoint {
	out := make([]gocv.KeyPoint, len(kps))
	for i, kp := range kps {
		out[i] = gocv.KeyPoint{
			X:        kp.X + offset.X,
			Y:        kp.Y + offset.Y,
			Size:     kp.Size,
			Angle:    kp.Angle,
			Response: kp.Response,
			Octave:   kp.Octave,
			ClassID:  -1,
		}
	}
	return out
}
