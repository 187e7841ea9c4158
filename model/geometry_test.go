package model

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBox(t *testing.T) {
	tests := []struct {
		name                   string
		xmin, ymin, xmax, ymax int
		wantErr                bool
	}{
		{"valid", 0, 0, 10, 20, false},
		{"zero width", 5, 0, 5, 20, true},
		{"zero height", 0, 5, 10, 5, true},
		{"inverted", 10, 10, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBox(tt.xmin, tt.ymin, tt.xmax, tt.ymax)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.xmax-tt.xmin, b.Width())
			assert.Equal(t, tt.ymax-tt.ymin, b.Height())
		})
	}
}

func TestBox_Clamp(t *testing.T) {
	b := Box{XMin: -5, YMin: -3, XMax: 120, YMax: 40}
	c := b.Clamp(100, 50)
	assert.Equal(t, Box{XMin: 0, YMin: 0, XMax: 100, YMax: 40}, c)
	assert.Equal(t, 4000, c.Area())
}

func TestBox_ClampOutside(t *testing.T) {
	b := Box{XMin: 150, YMin: 10, XMax: 200, YMax: 20}
	c := b.Clamp(100, 50)
	assert.True(t, c.Empty())
	assert.Equal(t, 0, c.Area())
}

func TestBoxFromRect(t *testing.T) {
	b := BoxFromRect(image.Rect(30, 40, 10, 20))
	assert.Equal(t, Box{XMin: 10, YMin: 20, XMax: 30, YMax: 40}, b)
	assert.Equal(t, image.Rect(10, 20, 30, 40), b.Rect())
}

func TestLabelFromResponse(t *testing.T) {
	l, ok := LabelFromResponse(1)
	assert.True(t, ok)
	assert.Equal(t, "Speed Limit 30 km/h", l.String())

	l, ok = LabelFromResponse(2)
	assert.True(t, ok)
	assert.Equal(t, "Speed Limit 50 km/h", l.String())

	_, ok = LabelFromResponse(0)
	assert.False(t, ok)
	_, ok = LabelFromResponse(7)
	assert.False(t, ok)
}

func TestNewDetectionItem(t *testing.T) {
	item := NewDetectionItem(ClassifiedRegion{Box: Box{XMin: 1, YMin: 2, XMax: 21, YMax: 32}, Label: LabelSpeedLimit50})
	assert.Equal(t, "classified", item.Type)
	assert.Equal(t, BBox{X: 1, Y: 2, Width: 20, Height: 30}, item.BoundingBox)
	assert.Equal(t, "Speed Limit 50 km/h", item.Label)

	item = NewDetectionItem(MatchDetection{ReferenceName: "stop.jpg", Matches: make([]Correspondence, 12)})
	assert.Equal(t, "match", item.Type)
	assert.Equal(t, "stop.jpg", item.Reference)
	assert.Equal(t, 12, item.GoodMatchCount)
}
