package matching

import (
	"fmt"

	"github.com/TIANLI0/SignKit/model"
)

const (
	// DefaultRatio Lowe 比率阈值，比常用的 0.7-0.8 更严格
	DefaultRatio = 0.6
	// DefaultMinGoodMatches 最佳候选的好匹配数必须严格大于该值
	DefaultMinGoodMatches = 10
)

// Config 匹配引擎参数
type Config struct {
	Ratio          float64
	MinGoodMatches int
}

// DefaultConfig 返回默认参数
func DefaultConfig() Config {
	return Config{Ratio: DefaultRatio, MinGoodMatches: DefaultMinGoodMatches}
}

// Engine 在参考描述子集合中选出支持度最高的条目
type Engine struct {
	cfg     Config
	matcher KnnMatcher
}

func NewEngine(cfg Config, matcher KnnMatcher) *Engine {
	if cfg.Ratio <= 0 {
		cfg.Ratio = DefaultRatio
	}
	return &Engine{cfg: cfg, matcher: matcher}
}

// PassesRatio Lowe 比率测试：d1 < ratio*d2
func PassesRatio(d1, d2, ratio float64) bool {
	return d1 < ratio*d2
}

// FilterGood 对 k=2 的匹配结果做比率测试，不足两个近邻的描述子被忽略
func FilterGood(matches [][]Neighbor, ratio float64) []model.Correspondence {
	good := make([]model.Correspondence, 0)
	for _, m := range matches {
		if len(m) < 2 {
			continue
		}
		if PassesRatio(m[0].Distance, m[1].Distance, ratio) {
			good = append(good, model.Correspondence{
				QueryIdx: m[0].QueryIdx,
				RefIdx:   m[0].RefIdx,
				Distance: m[0].Distance,
			})
		}
	}
	return good
}

// Best 返回好匹配最多的参考条目，并发安全（无共享可变状态）
//
// 并列时保留先出现的条目。accepted 仅当最佳计数大于 MinGoodMatches。
// 查询描述子为空时不调用匹配器。
func (e *Engine) Best(query []model.Descriptor, refs [][]model.Descriptor) (best *model.MatchCandidate, accepted bool, err error) {
	if len(query) == 0 {
		return nil, false, nil
	}

	maxCount := 0
	for i, ref := range refs {
		if len(ref) == 0 {
			continue
		}
		matches, err := e.matcher.KnnMatch(ref, query, 2)
		if err != nil {
			return nil, false, fmt.Errorf("knn match reference %d: %w", i, err)
		}
		good := FilterGood(matches, e.cfg.Ratio)
		if len(good) > maxCount {
			maxCount = len(good)
			best = &model.MatchCandidate{
				ReferenceIndex: i,
				GoodMatchCount: len(good),
				GoodMatches:    good,
			}
		}
	}

	if best == nil {
		return nil, false, nil
	}
	return best, best.GoodMatchCount > e.cfg.MinGoodMatches, nil
}
