package model

// DetectionRecord 检测记录，同时用于响应和缓存
type DetectionRecord struct {
	MD5        string          `json:"md5"`
	Strategy   string          `json:"strategy"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	Detected   bool            `json:"detected"`
	Reason     string          `json:"reason,omitempty"`
	Detections []DetectionItem `json:"detections"`
	Image      string          `json:"image"` // base64编码的JPEG结果图
	Timestamp  int64           `json:"timestamp"`
}

// DetectionItem 单个检测的序列化形式
type DetectionItem struct {
	Type           string `json:"type"` // match, classified
	Label          string `json:"label"`
	BoundingBox    BBox   `json:"bounding_box"`
	Reference      string `json:"reference,omitempty"`
	GoodMatchCount int    `json:"good_match_count,omitempty"`
}

// BBox 边界框
type BBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// BBoxFromBox 转换为 x/y/width/height 形式
func BBoxFromBox(b Box) BBox {
	return BBox{X: b.XMin, Y: b.YMin, Width: b.Width(), Height: b.Height()}
}

// NewDetectionItem 将检测转换为响应条目
func NewDetectionItem(d Detection) DetectionItem {
	switch v := d.(type) {
	case MatchDetection:
		return DetectionItem{
			Type:           v.Kind(),
			Label:          v.ReferenceName,
			BoundingBox:    BBoxFromBox(v.ROI),
			Reference:      v.ReferenceName,
			GoodMatchCount: len(v.Matches),
		}
	case ClassifiedRegion:
		return DetectionItem{
			Type:        v.Kind(),
			Label:       v.Label.String(),
			BoundingBox: BBoxFromBox(v.Box),
		}
	default:
		return DetectionItem{Type: d.Kind()}
	}
}

// UploadResponse 上传响应
type UploadResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Data    *DetectionRecord `json:"data,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
