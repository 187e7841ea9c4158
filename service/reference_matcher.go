package service

import (
	"fmt"

	"github.com/TIANLI0/SignKit/model"
	"github.com/TIANLI0/SignKit/service/matching"
	"gocv.io/x/gocv"
)

// MatchResult 最佳参考条目及其好匹配；Entry 为 nil 表示没有任何好匹配
type MatchResult struct {
	QueryFeatures int
	Entry         *ReferenceEntry
	Candidate     *model.MatchCandidate
}

// Detection 转换为检测结果
func (r *MatchResult) Detection() model.MatchDetection {
	return model.MatchDetection{
		ReferenceIndex: r.Candidate.ReferenceIndex,
		ReferenceName:  r.Entry.Name,
		ROI:            r.Entry.ROI,
		Matches:        r.Candidate.GoodMatches,
	}
}

// ReferenceMatcher 在参考库中查找与查询图最相似的条目
type ReferenceMatcher struct {
	corpus    *Corpus
	extractor FeatureExtractor
	engine    *matching.Engine
	refs      [][]model.Descriptor
}

func NewReferenceMatcher(corpus *Corpus, extractor FeatureExtractor, engine *matching.Engine) *ReferenceMatcher {
	return &ReferenceMatcher{
		corpus:    corpus,
		extractor: extractor,
		engine:    engine,
		refs:      corpus.Descriptors(),
	}
}

// Match 对灰度查询图做匹配，accepted 表示最佳条目的好匹配数超过阈值
func (m *ReferenceMatcher) Match(gray gocv.Mat) (*MatchResult, bool, error) {
	_, query := m.extractor.Extract(gray)
	result := &MatchResult{QueryFeatures: len(query)}
	if len(query) == 0 {
		return result, false, nil
	}

	best, accepted, err := m.engine.Best(query, m.refs)
	if err != nil {
		return nil, false, fmt.Errorf("match against corpus: %w", err)
	}
	if best == nil {
		return result, false, nil
	}

	result.Entry = m.corpus.Entries[best.ReferenceIndex]
	result.Candidate = best
	return result, accepted, nil
}
