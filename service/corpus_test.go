package service

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/TIANLI0/SignKit/config"
	"github.com/TIANLI0/SignKit/model"
	"github.com/TIANLI0/SignKit/service/matching"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

const vocTemplate = `<annotation>
	<filename>%s</filename>
	<object>
		<name>sign</name>
		<bndbox>
			<xmin>%d</xmin>
			<ymin>%d</ymin>
			<xmax>%d</xmax>
			<ymax>%d</ymax>
		</bndbox>
	</object>
</annotation>`

func writeReference(t *testing.T, dir, name string, img gocv.Mat, box *model.Box) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.True(t, gocv.IMWrite(path, img))
	if box != nil {
		xml := fmt.Sprintf(vocTemplate, name, box.XMin, box.YMin, box.XMax, box.YMax)
		require.NoError(t, os.WriteFile(annotationPath(path), []byte(xml), 0o644))
	}
	return path
}

func annotationPath(imagePath string) string {
	return imagePath[:len(imagePath)-len(filepath.Ext(imagePath))] + ".xml"
}

// buildTestCorpus 两个有效条目以及若干应被跳过的条目
func buildTestCorpus(t *testing.T) (string, *Corpus) {
	t.Helper()
	dir := t.TempDir()

	a := texturedBGR(300, 240, 1)
	defer a.Close()
	writeReference(t, dir, "a_sign.png", a, &model.Box{XMin: 0, YMin: 0, XMax: 300, YMax: 240})

	b := texturedBGR(260, 260, 2)
	defer b.Close()
	writeReference(t, dir, "b_clamped.png", b, &model.Box{XMin: -20, YMin: -5, XMax: 1000, YMax: 1000})

	c := texturedBGR(200, 200, 3)
	defer c.Close()
	writeReference(t, dir, "c_missing_xml.png", c, nil)
	writeReference(t, dir, "d_tiny.png", c, &model.Box{XMin: 10, YMin: 10, XMax: 15, YMax: 15})

	flat := blankBGR(120, 120)
	defer flat.Close()
	writeReference(t, dir, "e_flat.png", flat, &model.Box{XMin: 10, YMin: 10, XMax: 100, YMax: 100})

	broken := filepath.Join(dir, "f_broken.jpg")
	require.NoError(t, os.WriteFile(broken, []byte("not an image"), 0o644))
	require.NoError(t, os.WriteFile(annotationPath(broken), []byte(fmt.Sprintf(vocTemplate, "f", 0, 0, 50, 50)), 0o644))

	g := writeReference(t, dir, "g_bad_xml.png", c, nil)
	require.NoError(t, os.WriteFile(annotationPath(g), []byte("<annotation><object>"), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	corpus, err := BuildCorpus(dir, NewSIFTExtractor(500), &config.CorpusConfig{MinROISize: 10, MaxFeatures: 500})
	require.NoError(t, err)
	t.Cleanup(corpus.Close)
	return dir, corpus
}

func TestBuildCorpus(t *testing.T) {
	_, corpus := buildTestCorpus(t)

	require.Equal(t, 2, corpus.Len())
	assert.Equal(t, "a_sign.png", corpus.Entries[0].Name)
	assert.Equal(t, "b_clamped.png", corpus.Entries[1].Name)

	// 超出图像的标注框被裁剪
	assert.Equal(t, model.Box{XMin: 0, YMin: 0, XMax: 260, YMax: 260}, corpus.Entries[1].ROI)

	for _, e := range corpus.Entries {
		assert.Equal(t, 1, e.Image.Channels())
		assert.NotEmpty(t, e.Descriptors)
		assert.LessOrEqual(t, len(e.Descriptors), 500)
		assert.Len(t, e.Keypoints, len(e.Descriptors))
	}
	assert.Len(t, corpus.Descriptors(), 2)
}

func TestBuildCorpus_MissingFolder(t *testing.T) {
	_, err := BuildCorpus(filepath.Join(t.TempDir(), "missing"), NewSIFTExtractor(500), &config.CorpusConfig{MinROISize: 10})
	assert.Error(t, err)
}

func TestBuildCorpus_EmptyFolder(t *testing.T) {
	corpus, err := BuildCorpus(t.TempDir(), NewSIFTExtractor(500), &config.CorpusConfig{MinROISize: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, corpus.Len())
}

func TestReferenceMatcher(t *testing.T) {
	dir, corpus := buildTestCorpus(t)
	extractor := NewSIFTExtractor(500)

	matchers := map[string]matching.KnnMatcher{
		"kdtree":     matching.NewKDTreeMatcher(0),
		"bruteforce": BFKnnMatcher{},
	}
	for name, knn := range matchers {
		t.Run(name, func(t *testing.T) {
			m := NewReferenceMatcher(corpus, extractor, matching.NewEngine(matching.DefaultConfig(), knn))

			for i, file := range []string{"a_sign.png", "b_clamped.png"} {
				query := gocv.IMRead(filepath.Join(dir, file), gocv.IMReadGrayScale)
				result, accepted, err := m.Match(query)
				query.Close()

				require.NoError(t, err)
				require.NotNil(t, result)
				assert.True(t, accepted)
				assert.Equal(t, i, result.Candidate.ReferenceIndex)
				assert.Equal(t, file, result.Entry.Name)
				assert.Greater(t, result.Candidate.GoodMatchCount, matching.DefaultMinGoodMatches)
			}

			blank := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 100, 100, gocv.MatTypeCV8U)
			defer blank.Close()
			result, accepted, err := m.Match(blank)
			require.NoError(t, err)
			assert.False(t, accepted)
			assert.Zero(t, result.QueryFeatures)
			assert.Nil(t, result.Entry)
		})
	}
}

func TestReferenceMatcher_EmptyCorpus(t *testing.T) {
	img := texturedBGR(200, 200, 9)
	defer img.Close()
	gray := toGray(t, img)
	defer gray.Close()

	tests := []struct {
		name   string
		corpus *Corpus
	}{
		{"no entries", &Corpus{}},
		{"nil corpus", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, tt.corpus.Descriptors())
			assert.Zero(t, tt.corpus.Len())

			m := NewReferenceMatcher(tt.corpus, NewSIFTExtractor(500),
				matching.NewEngine(matching.DefaultConfig(), matching.NewKDTreeMatcher(0)))

			result, accepted, err := m.Match(gray)
			require.NoError(t, err)
			assert.False(t, accepted)
			assert.Positive(t, result.QueryFeatures)
			assert.Nil(t, result.Entry)
			assert.Nil(t, result.Candidate)
		})
	}
}
