package service

import (
	"fmt"
	"strings"

	"github.com/TIANLI0/SignKit/config"
	"github.com/TIANLI0/SignKit/model"
	"github.com/TIANLI0/SignKit/service/matching"
	"gocv.io/x/gocv"
)

// 近邻索引类型
const (
	IndexKDTree     = "kdtree"
	IndexBruteForce = "bruteforce"
	IndexLinear     = "linear"
)

// BFKnnMatcher 使用 OpenCV 暴力匹配器 (L2)
type BFKnnMatcher struct{}

// KnnMatch 对每个参考描述子在查询描述子中找 k 个近邻
func (BFKnnMatcher) KnnMatch(ref, query []model.Descriptor, k int) ([][]matching.Neighbor, error) {
	if len(ref) == 0 || len(query) == 0 {
		return make([][]matching.Neighbor, len(ref)), nil
	}

	refMat, err := descriptorsToMat(ref)
	if err != nil {
		return nil, err
	}
	defer refMat.Close()

	queryMat, err := descriptorsToMat(query)
	if err != nil {
		return nil, err
	}
	defer queryMat.Close()

	if refMat.Cols() != queryMat.Cols() {
		return nil, fmt.Errorf("descriptor length mismatch: %d vs %d", refMat.Cols(), queryMat.Cols())
	}

	bf := gocv.NewBFMatcherWithParams(gocv.NormL2, false)
	defer bf.Close()

	raw := bf.KnnMatch(refMat, queryMat, k)
	out := make([][]matching.Neighbor, len(ref))
	for _, row := range raw {
		if len(row) == 0 {
			continue
		}
		r := row[0].QueryIdx
		if r < 0 || r >= len(out) {
			continue
		}
		neighbors := make([]matching.Neighbor, 0, len(row))
		for _, m := range row {
			neighbors = append(neighbors, matching.Neighbor{
				RefIdx:   m.QueryIdx,
				QueryIdx: m.TrainIdx,
				Distance: m.Distance,
			})
		}
		out[r] = neighbors
	}
	return out, nil
}

// descriptorsToMat 把描述子拷贝为 CV_32F 矩阵，每行一个描述子
func descriptorsToMat(descs []model.Descriptor) (gocv.Mat, error) {
	cols := len(descs[0])
	if cols == 0 {
		return gocv.Mat{}, fmt.Errorf("empty descriptor")
	}
	m := gocv.NewMatWithSize(len(descs), cols, gocv.MatTypeCV32F)
	for i, d := range descs {
		if len(d) != cols {
			m.Close()
			return gocv.Mat{}, fmt.Errorf("descriptor %d has %d values, want %d", i, len(d), cols)
		}
		for j, v := range d {
			m.SetFloatAt(i, j, v)
		}
	}
	return m, nil
}

// NewKnnMatcher 根据配置选择近邻匹配实现
func NewKnnMatcher(cfg *config.MatcherConfig) (matching.KnnMatcher, error) {
	switch strings.ToLower(cfg.Index) {
	case "", IndexKDTree:
		return matching.NewKDTreeMatcher(cfg.Checks), nil
	case IndexBruteForce:
		return BFKnnMatcher{}, nil
	case IndexLinear:
		return matching.BruteForceMatcher{}, nil
	default:
		return nil, fmt.Errorf("unknown matcher index %q", cfg.Index)
	}
}
