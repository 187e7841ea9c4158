// Package annotation 读取 Pascal VOC 格式的标注文件
package annotation

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/TIANLI0/SignKit/model"
)

var (
	// ErrNoAnnotation 标注文件不存在
	ErrNoAnnotation = errors.New("annotation file not found")
	// ErrMalformedAnnotation 标注文件结构错误
	ErrMalformedAnnotation = errors.New("malformed annotation")
)

type vocAnnotation struct {
	XMLName xml.Name    `xml:"annotation"`
	Objects []vocObject `xml:"object"`
}

type vocObject struct {
	Name   string     `xml:"name"`
	BndBox *vocBndBox `xml:"bndbox"`
}

type vocBndBox struct {
	XMin string `xml:"xmin"`
	YMin string `xml:"ymin"`
	XMax string `xml:"xmax"`
	YMax string `xml:"ymax"`
}

// SidecarPath 返回图像同名的 .xml 路径
func SidecarPath(imagePath string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".xml"
}

// ReadForImage 读取图像对应的标注框
func ReadForImage(imagePath string) (model.Box, error) {
	data, err := os.ReadFile(SidecarPath(imagePath))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.Box{}, fmt.Errorf("%w: %s", ErrNoAnnotation, SidecarPath(imagePath))
		}
		return model.Box{}, fmt.Errorf("read annotation: %w", err)
	}
	return Parse(data)
}

// Parse 解析第一个 object 的 bndbox，坐标不做合法性裁剪
func Parse(data []byte) (model.Box, error) {
	var doc vocAnnotation
	if err := xml.Unmarshal(data, &doc); err != nil {
		return model.Box{}, fmt.Errorf("%w: %v", ErrMalformedAnnotation, err)
	}
	if len(doc.Objects) == 0 || doc.Objects[0].BndBox == nil {
		return model.Box{}, fmt.Errorf("%w: missing object/bndbox", ErrMalformedAnnotation)
	}

	bb := doc.Objects[0].BndBox
	var coords [4]int
	for i, s := range []string{bb.XMin, bb.YMin, bb.XMax, bb.YMax} {
		v, err := parseCoord(s)
		if err != nil {
			return model.Box{}, fmt.Errorf("%w: %v", ErrMalformedAnnotation, err)
		}
		coords[i] = v
	}

	return model.Box{XMin: coords[0], YMin: coords[1], XMax: coords[2], YMax: coords[3]}, nil
}

// parseCoord 部分标注工具会输出小数坐标，截断为整数
func parseCoord(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty coordinate")
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid coordinate %q", s)
	}
	return int(f), nil
}
