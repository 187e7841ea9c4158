package service

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"testing"

	"github.com/TIANLI0/SignKit/config"
	"github.com/TIANLI0/SignKit/model"
	"github.com/TIANLI0/SignKit/service/matching"
	"github.com/TIANLI0/SignKit/service/texture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// constModel 固定输出的分类器
type constModel struct {
	label int
	err   error
	calls int
}

func (m *constModel) Predict(features []float32) (int, error) {
	m.calls++
	if len(features) != texture.Bins {
		return 0, texture.ErrFeatureShape
	}
	return m.label, m.err
}

func newTextureDetector(t *testing.T, m texture.Model) *TextureClassifyDetector {
	t.Helper()
	composer, err := NewComposer(defaultCompose(), defaultProposal())
	require.NoError(t, err)
	return NewTextureClassifyDetector(NewTextureClassifier(NewRegionProposer(defaultProposal()), m), composer)
}

func decodeOutcome(t *testing.T, o model.Outcome) gocv.Mat {
	t.Helper()
	img, err := gocv.IMDecode(o.Image, gocv.IMReadColor)
	require.NoError(t, err)
	require.False(t, img.Empty())
	return img
}

func TestTextureClassifyDetector(t *testing.T) {
	img := blankBGR(240, 160)
	defer img.Close()
	fillRect(&img, image.Rect(30, 40, 90, 100), red)
	fillRect(&img, image.Rect(140, 40, 200, 100), red)

	m := &constModel{label: 2}
	outcome, err := newTextureDetector(t, m).Detect(img)
	require.NoError(t, err)

	assert.True(t, outcome.Detected)
	assert.Empty(t, outcome.Reason)
	assert.Equal(t, 2, m.calls)
	require.Len(t, outcome.Detections, 2)
	for _, d := range outcome.Detections {
		region, ok := d.(model.ClassifiedRegion)
		require.True(t, ok)
		assert.Equal(t, model.LabelSpeedLimit50, region.Label)
	}

	out := decodeOutcome(t, outcome)
	defer out.Close()
	assert.Equal(t, img.Rows(), out.Rows())
	assert.Equal(t, img.Cols(), out.Cols())
}

func TestTextureClassifyDetector_NoRegion(t *testing.T) {
	img := blankBGR(100, 100)
	defer img.Close()

	m := &constModel{label: 1}
	outcome, err := newTextureDetector(t, m).Detect(img)
	require.NoError(t, err)
	assert.False(t, outcome.Detected)
	assert.Equal(t, ReasonNoRedRegion, outcome.Reason)
	assert.Zero(t, m.calls)
}

func TestTextureClassifyDetector_NotASign(t *testing.T) {
	img := blankBGR(100, 100)
	defer img.Close()
	fillRect(&img, image.Rect(20, 20, 80, 80), red)

	outcome, err := newTextureDetector(t, &constModel{label: 0}).Detect(img)
	require.NoError(t, err)
	assert.False(t, outcome.Detected)
	assert.Equal(t, ReasonNoSign, outcome.Reason)
	assert.Empty(t, outcome.Detections)
}

func TestTextureClassifyDetector_ClassifierError(t *testing.T) {
	img := blankBGR(100, 100)
	defer img.Close()
	fillRect(&img, image.Rect(20, 20, 80, 80), red)

	wrongShape := bin0ModelWithVars(t, 10)
	_, err := newTextureDetector(t, wrongShape).Detect(img)
	assert.ErrorIs(t, err, texture.ErrFeatureShape)

	boom := errors.New("boom")
	_, err = newTextureDetector(t, &constModel{err: boom}).Detect(img)
	assert.ErrorIs(t, err, boom)
}

// bin0ModelWithVars 线性模型，维度为 vars
func bin0ModelWithVars(t *testing.T, vars int) *texture.SVM {
	t.Helper()
	sv := make([]float64, vars)
	sv[0] = 1
	return &texture.SVM{
		Kernel:         texture.KernelLinear,
		VarCount:       vars,
		ClassLabels:    []int{1, 0},
		SupportVectors: [][]float64{sv},
		Decisions:      []texture.DecisionFunction{{Rho: 0.5, Alpha: []float64{1}, Index: []int{0}}},
	}
}

func TestReferenceMatchDetector(t *testing.T) {
	dir, corpus := buildTestCorpus(t)
	extractor := NewSIFTExtractor(500)
	composer, err := NewComposer(defaultCompose(), defaultProposal())
	require.NoError(t, err)

	engine := matching.NewEngine(matching.DefaultConfig(), matching.NewKDTreeMatcher(0))
	d := NewReferenceMatchDetector(NewReferenceMatcher(corpus, extractor, engine), composer, matching.DefaultMinGoodMatches)

	query := gocv.IMRead(filepath.Join(dir, "a_sign.png"), gocv.IMReadColor)
	defer query.Close()

	outcome, err := d.Detect(query)
	require.NoError(t, err)
	require.True(t, outcome.Detected)
	require.Len(t, outcome.Detections, 1)

	md, ok := outcome.Detections[0].(model.MatchDetection)
	require.True(t, ok)
	assert.Equal(t, "a_sign.png", md.ReferenceName)
	assert.Greater(t, len(md.Matches), matching.DefaultMinGoodMatches)

	out := decodeOutcome(t, outcome)
	defer out.Close()
	assert.Equal(t, corpus.Entries[0].Image.Cols()+query.Cols(), out.Cols())

	blank := blankBGR(120, 120)
	defer blank.Close()
	outcome, err = d.Detect(blank)
	require.NoError(t, err)
	assert.False(t, outcome.Detected)
	assert.Equal(t, ReasonNoQueryFeatures, outcome.Reason)

	unchangedImg := decodeOutcome(t, outcome)
	defer unchangedImg.Close()
	assert.Equal(t, 120, unchangedImg.Cols())
}

func TestReferenceMatchDetector_EmptyCorpus(t *testing.T) {
	composer, err := NewComposer(defaultCompose(), defaultProposal())
	require.NoError(t, err)
	engine := matching.NewEngine(matching.DefaultConfig(), matching.NewKDTreeMatcher(0))
	d := NewReferenceMatchDetector(NewReferenceMatcher(&Corpus{}, NewSIFTExtractor(500), engine), composer, 10)

	img := texturedBGR(150, 150, 8)
	defer img.Close()

	outcome, err := d.Detect(img)
	require.NoError(t, err)
	assert.False(t, outcome.Detected)
	assert.Equal(t, ReasonEmptyCorpus, outcome.Reason)
}

// fakeDetector 记录调用次数
type fakeDetector struct {
	name  string
	calls int
}

func (d *fakeDetector) Name() string { return d.name }

func (d *fakeDetector) Detect(bgr gocv.Mat) (model.Outcome, error) {
	d.calls++
	return model.Outcome{Image: []byte{1}, Detected: true}, nil
}

func encodedBlank(t *testing.T, w, h int) []byte {
	t.Helper()
	img := blankBGR(w, h)
	defer img.Close()
	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	require.NoError(t, err)
	return copyNative(buf)
}

func TestDetectionService_Process(t *testing.T) {
	match := &fakeDetector{name: StrategyMatch}
	tex := &fakeDetector{name: StrategyTexture}
	s := NewDetectionService(&config.EngineConfig{MaxConcurrent: 2, QueueTimeout: 5}, match, tex)

	assert.True(t, s.Supports(StrategyMatch))
	assert.False(t, s.Supports("ocr"))

	data := encodedBlank(t, 64, 48)

	outcome, err := s.ProcessReferenceMatch(context.Background(), data)
	require.NoError(t, err)
	assert.True(t, outcome.Detected)
	assert.Equal(t, 64, outcome.Width)
	assert.Equal(t, 48, outcome.Height)
	assert.Equal(t, 1, match.calls)

	_, err = s.ProcessTextureClassification(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, 1, tex.calls)
}

func TestDetectionService_Errors(t *testing.T) {
	s := NewDetectionService(&config.EngineConfig{MaxConcurrent: 1, QueueTimeout: 5}, &fakeDetector{name: StrategyMatch})

	_, err := s.Process(context.Background(), "ocr", nil)
	assert.ErrorIs(t, err, model.ErrUnknownStrategy)

	_, err = s.Process(context.Background(), StrategyMatch, []byte("not an image"))
	assert.ErrorIs(t, err, model.ErrUndecodableImage)
}

func TestDetectionService_QueueFull(t *testing.T) {
	s := NewDetectionService(&config.EngineConfig{MaxConcurrent: 1, QueueTimeout: 5}, &fakeDetector{name: StrategyMatch})

	// 占满处理槽位
	s.semaphore <- struct{}{}
	defer func() { <-s.semaphore }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Process(ctx, StrategyMatch, encodedBlank(t, 10, 10))
	assert.ErrorIs(t, err, model.ErrQueueFull)
}

func TestReferenceMatchDetector_SingleReferenceCrop(t *testing.T) {
	dir := t.TempDir()
	ref := texturedBGR(320, 260, 11)
	defer ref.Close()
	roi := model.Box{XMin: 40, YMin: 30, XMax: 280, YMax: 230}
	path := writeReference(t, dir, "speed_limit.png", ref, &roi)

	extractor := NewSIFTExtractor(500)
	corpus, err := BuildCorpus(dir, extractor, &config.CorpusConfig{MinROISize: 10, MaxFeatures: 500})
	require.NoError(t, err)
	defer corpus.Close()
	require.Equal(t, 1, corpus.Len())

	// 查询图与参考 ROI 像素完全一致
	gray := gocv.IMRead(path, gocv.IMReadGrayScale)
	defer gray.Close()
	crop := gray.Region(roi.Rect())
	defer crop.Close()
	query := gocv.NewMat()
	defer query.Close()
	gocv.CvtColor(crop, &query, gocv.ColorGrayToBGR)

	composer, err := NewComposer(defaultCompose(), defaultProposal())
	require.NoError(t, err)
	engine := matching.NewEngine(matching.DefaultConfig(), matching.NewKDTreeMatcher(0))
	d := NewReferenceMatchDetector(NewReferenceMatcher(corpus, extractor, engine), composer, matching.DefaultMinGoodMatches)

	outcome, err := d.Detect(query)
	require.NoError(t, err)
	require.True(t, outcome.Detected)

	md := outcome.Detections[0].(model.MatchDetection)
	assert.Equal(t, 0, md.ReferenceIndex)
	assert.Equal(t, roi, md.ROI)
	assert.Greater(t, len(md.Matches), matching.DefaultMinGoodMatches)

	out := decodeOutcome(t, outcome)
	defer out.Close()
	assert.Equal(t, 260, out.Rows())
	assert.Equal(t, 320+240, out.Cols())
}
