package texture

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrFeatureShape 特征向量维度与模型不一致
var ErrFeatureShape = errors.New("feature vector shape mismatch")

// Model 预训练分类器
type Model interface {
	Predict(features []float32) (int, error)
}

// 核函数类型，与 OpenCV ml::SVM 一致
const (
	KernelLinear  = "LINEAR"
	KernelPoly    = "POLY"
	KernelRBF     = "RBF"
	KernelSigmoid = "SIGMOID"
)

// SVM OpenCV C_SVC 模型的纯 Go 预测实现，一对一投票
type SVM struct {
	Kernel         string
	Gamma          float64
	Coef0          float64
	Degree         float64
	VarCount       int
	ClassLabels    []int
	SupportVectors [][]float64
	Decisions      []DecisionFunction
}

// DecisionFunction 一对一分类器 (i, j) 的决策函数
type DecisionFunction struct {
	Rho   float64
	Alpha []float64
	Index []int // 支持向量下标；为空表示压缩模型中的第 n 个向量
}

type matrixNode struct {
	Rows int       `yaml:"rows"`
	Cols int       `yaml:"cols"`
	Data []float64 `yaml:"data"`
}

type svmFile struct {
	SVM struct {
		SVMType string `yaml:"svmType"`
		Kernel  struct {
			Type   string  `yaml:"type"`
			Gamma  float64 `yaml:"gamma"`
			Coef0  float64 `yaml:"coef0"`
			Degree float64 `yaml:"degree"`
		} `yaml:"kernel"`
		VarCount          int          `yaml:"var_count"`
		ClassCount        int          `yaml:"class_count"`
		ClassLabels       *matrixNode  `yaml:"class_labels"`
		SVTotal           int          `yaml:"sv_total"`
		SupportVectors    [][]float64  `yaml:"support_vectors"`
		DecisionFunctions []decisionFn `yaml:"decision_functions"`
	} `yaml:"opencv_ml_svm"`
}

type decisionFn struct {
	SVCount int       `yaml:"sv_count"`
	Rho     float64   `yaml:"rho"`
	Alpha   []float64 `yaml:"alpha"`
	Index   []int     `yaml:"index"`
}

// LoadSVM 从 OpenCV 导出的 YAML 文件加载模型
func LoadSVM(path string) (*SVM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read svm model: %w", err)
	}
	return ParseSVM(data)
}

// ParseSVM 解析 opencv_ml_svm 文档
func ParseSVM(data []byte) (*SVM, error) {
	// OpenCV 写出的 "%YAML:1.0" 指令不是合法的 YAML 1.2
	if bytes.HasPrefix(data, []byte("%YAML")) {
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			data = data[i+1:]
		} else {
			data = nil
		}
	}

	var f svmFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse svm model: %w", err)
	}
	s := f.SVM

	if s.SVMType != "" && s.SVMType != "C_SVC" && s.SVMType != "NU_SVC" {
		return nil, fmt.Errorf("unsupported svm type %q", s.SVMType)
	}
	kernel := strings.ToUpper(s.Kernel.Type)
	switch kernel {
	case KernelLinear, KernelPoly, KernelRBF, KernelSigmoid:
	default:
		return nil, fmt.Errorf("unsupported svm kernel %q", s.Kernel.Type)
	}
	if s.VarCount <= 0 {
		return nil, errors.New("svm model has no var_count")
	}
	if s.ClassLabels == nil || len(s.ClassLabels.Data) < 2 {
		return nil, errors.New("svm model needs at least two class labels")
	}
	if len(s.SupportVectors) == 0 {
		return nil, errors.New("svm model has no support vectors")
	}
	for i, sv := range s.SupportVectors {
		if len(sv) != s.VarCount {
			return nil, fmt.Errorf("support vector %d has %d values, want %d", i, len(sv), s.VarCount)
		}
	}

	labels := make([]int, len(s.ClassLabels.Data))
	for i, v := range s.ClassLabels.Data {
		labels[i] = int(v)
	}
	nClass := len(labels)
	if want := nClass * (nClass - 1) / 2; len(s.DecisionFunctions) != want {
		return nil, fmt.Errorf("svm model has %d decision functions, want %d", len(s.DecisionFunctions), want)
	}

	decisions := make([]DecisionFunction, len(s.DecisionFunctions))
	for i, df := range s.DecisionFunctions {
		if len(df.Alpha) == 0 {
			return nil, fmt.Errorf("decision function %d has no alpha", i)
		}
		if len(df.Index) > 0 && len(df.Index) != len(df.Alpha) {
			return nil, fmt.Errorf("decision function %d: %d indices for %d alphas", i, len(df.Index), len(df.Alpha))
		}
		for _, idx := range df.Index {
			if idx < 0 || idx >= len(s.SupportVectors) {
				return nil, fmt.Errorf("decision function %d references support vector %d", i, idx)
			}
		}
		if len(df.Index) == 0 && i+len(df.Alpha) > len(s.SupportVectors) {
			return nil, fmt.Errorf("decision function %d: compressed support vector out of range", i)
		}
		decisions[i] = DecisionFunction{Rho: df.Rho, Alpha: df.Alpha, Index: df.Index}
	}

	return &SVM{
		Kernel:         kernel,
		Gamma:          s.Kernel.Gamma,
		Coef0:          s.Kernel.Coef0,
		Degree:         s.Kernel.Degree,
		VarCount:       s.VarCount,
		ClassLabels:    labels,
		SupportVectors: s.SupportVectors,
		Decisions:      decisions,
	}, nil
}

// Predict 一对一投票，返回得票最多的类别标签（并列取下标小者）
func (m *SVM) Predict(features []float32) (int, error) {
	if len(features) != m.VarCount {
		return 0, fmt.Errorf("%w: got %d values, want %d", ErrFeatureShape, len(features), m.VarCount)
	}
	x := make([]float64, len(features))
	for i, v := range features {
		x[i] = float64(v)
	}

	nClass := len(m.ClassLabels)
	votes := make([]int, nClass)
	df := 0
	for i := 0; i < nClass; i++ {
		for j := i + 1; j < nClass; j++ {
			d := m.Decisions[df]
			sum := -d.Rho
			for k, alpha := range d.Alpha {
				svIdx := df + k
				if len(d.Index) > 0 {
					svIdx = d.Index[k]
				}
				sum += alpha * m.kernel(m.SupportVectors[svIdx], x)
			}
			if sum > 0 {
				votes[i]++
			} else {
				votes[j]++
			}
			df++
		}
	}

	best := 0
	for i := 1; i < nClass; i++ {
		if votes[i] > votes[best] {
			best = i
		}
	}
	return m.ClassLabels[best], nil
}

func (m *SVM) kernel(sv, x []float64) float64 {
	switch m.Kernel {
	case KernelRBF:
		var d float64
		for i := range sv {
			t := sv[i] - x[i]
			d += t * t
		}
		return math.Exp(-m.Gamma * d)
	case KernelPoly:
		return math.Pow(m.Gamma*dot(sv, x)+m.Coef0, m.Degree)
	case KernelSigmoid:
		return math.Tanh(m.Gamma*dot(sv, x) + m.Coef0)
	default:
		return dot(sv, x)
	}
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
