package model

// Label 纹理分类器输出的标志类别
type Label int

const (
	LabelNone         Label = 0
	LabelSpeedLimit30 Label = 1
	LabelSpeedLimit50 Label = 2
)

// String 返回绘制在结果图上的文字
func (l Label) String() string {
	switch l {
	case LabelSpeedLimit30:
		return "Speed Limit 30 km/h"
	case LabelSpeedLimit50:
		return "Speed Limit 50 km/h"
	default:
		return "None"
	}
}

// LabelFromResponse 将分类器的整数输出映射为标签，ok=false 表示非标志
func LabelFromResponse(response int) (Label, bool) {
	switch Label(response) {
	case LabelSpeedLimit30, LabelSpeedLimit50:
		return Label(response), true
	default:
		return LabelNone, false
	}
}

// Correspondence 一对通过比率测试的特征点匹配
type Correspondence struct {
	QueryIdx int     `json:"query_idx"`
	RefIdx   int     `json:"ref_idx"`
	Distance float64 `json:"distance"`
}

// MatchCandidate 单个参考条目的匹配统计
type MatchCandidate struct {
	ReferenceIndex int              `json:"reference_index"`
	GoodMatchCount int              `json:"good_match_count"`
	GoodMatches    []Correspondence `json:"good_matches"`
}

// Detection 检测结果，MatchDetection 或 ClassifiedRegion
type Detection interface {
	Kind() string
}

// MatchDetection 参考库匹配检测
type MatchDetection struct {
	ReferenceIndex int              `json:"reference_index"`
	ReferenceName  string           `json:"reference_name"`
	ROI            Box              `json:"roi"`
	Matches        []Correspondence `json:"matches"`
}

func (MatchDetection) Kind() string { return "match" }

// ClassifiedRegion 颜色候选区域的纹理分类结果
type ClassifiedRegion struct {
	Box   Box   `json:"box"`
	Label Label `json:"label"`
}

func (ClassifiedRegion) Kind() string { return "classified" }

// Outcome 单次检测请求的结果
type Outcome struct {
	Image      []byte      // JPEG 编码的结果图
	Width      int         // 输入图像宽度
	Height     int         // 输入图像高度
	Detected   bool        // 是否找到检测
	Reason     string      // 未检测到时的原因
	Detections []Detection // 检测列表
}
