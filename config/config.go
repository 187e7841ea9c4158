package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// EnvConfigPath 指定配置文件路径的环境变量
const EnvConfigPath = "SIGNKIT_CONFIG"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Corpus     CorpusConfig     `mapstructure:"corpus"`
	Matcher    MatcherConfig    `mapstructure:"matcher"`
	Proposal   ProposalConfig   `mapstructure:"proposal"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Compose    ComposeConfig    `mapstructure:"compose"`
	Engine     EngineConfig     `mapstructure:"engine"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

// CorpusConfig 参考标志库
type CorpusConfig struct {
	Folder      string `mapstructure:"folder"`
	MinROISize  int    `mapstructure:"min_roi_size"`
	MaxFeatures int    `mapstructure:"max_features"`
}

// MatcherConfig 近邻匹配参数
type MatcherConfig struct {
	Index          string  `mapstructure:"index"` // kdtree, bruteforce
	Checks         int     `mapstructure:"checks"`
	Ratio          float64 `mapstructure:"ratio"`
	MinGoodMatches int     `mapstructure:"min_good_matches"`
}

// ProposalConfig 红色区域候选参数（OpenCV HSV 取值范围）
type ProposalConfig struct {
	LowHueMax     float64 `mapstructure:"low_hue_max"`
	HighHueMin    float64 `mapstructure:"high_hue_min"`
	HighHueMax    float64 `mapstructure:"high_hue_max"`
	MinSaturation float64 `mapstructure:"min_saturation"`
	MinValue      float64 `mapstructure:"min_value"`
	KernelSize    int     `mapstructure:"kernel_size"`
	MinArea       int     `mapstructure:"min_area"`
}

type ClassifierConfig struct {
	ModelPath string `mapstructure:"model_path"`
}

// ComposeConfig 结果图绘制参数，颜色为十六进制字符串
type ComposeConfig struct {
	KeypointColor  string  `mapstructure:"keypoint_color"`
	MatchBoxColor  string  `mapstructure:"match_box_color"`
	RegionBoxColor string  `mapstructure:"region_box_color"`
	Thickness      int     `mapstructure:"thickness"`
	FontScale      float64 `mapstructure:"font_scale"`
	ContourSatMin  float64 `mapstructure:"contour_saturation_min"`
	ContourValMin  float64 `mapstructure:"contour_value_min"`
	JPEGQuality    int     `mapstructure:"jpeg_quality"`
	MatchLabel     string  `mapstructure:"match_label"`
	MatchThickness int     `mapstructure:"match_thickness"`
	MatchFontScale float64 `mapstructure:"match_font_scale"`
	LabelOffset    int     `mapstructure:"label_offset"`
}

// EngineConfig 请求级并发控制
type EngineConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent"`
	QueueTimeout  int `mapstructure:"queue_timeout"`
}

// Load 从 YAML 文件加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 设置默认值
	setDefaults(v)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// New 使用默认配置路径加载配置
func New() *Config {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := Load(path)
	if err != nil {
		// 如果加载失败，返回默认配置
		return getDefaultConfig()
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	d := getDefaultConfig()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.ttl", d.Redis.TTL)

	v.SetDefault("upload.max_size", d.Upload.MaxSize)
	v.SetDefault("upload.allowed_types", d.Upload.AllowedTypes)

	v.SetDefault("corpus.folder", d.Corpus.Folder)
	v.SetDefault("corpus.min_roi_size", d.Corpus.MinROISize)
	v.SetDefault("corpus.max_features", d.Corpus.MaxFeatures)

	v.SetDefault("matcher.index", d.Matcher.Index)
	v.SetDefault("matcher.checks", d.Matcher.Checks)
	v.SetDefault("matcher.ratio", d.Matcher.Ratio)
	v.SetDefault("matcher.min_good_matches", d.Matcher.MinGoodMatches)

	v.SetDefault("proposal.low_hue_max", d.Proposal.LowHueMax)
	v.SetDefault("proposal.high_hue_min", d.Proposal.HighHueMin)
	v.SetDefault("proposal.high_hue_max", d.Proposal.HighHueMax)
	v.SetDefault("proposal.min_saturation", d.Proposal.MinSaturation)
	v.SetDefault("proposal.min_value", d.Proposal.MinValue)
	v.SetDefault("proposal.kernel_size", d.Proposal.KernelSize)
	v.SetDefault("proposal.min_area", d.Proposal.MinArea)

	v.SetDefault("classifier.model_path", d.Classifier.ModelPath)

	v.SetDefault("compose.keypoint_color", d.Compose.KeypointColor)
	v.SetDefault("compose.match_box_color", d.Compose.MatchBoxColor)
	v.SetDefault("compose.region_box_color", d.Compose.RegionBoxColor)
	v.SetDefault("compose.thickness", d.Compose.Thickness)
	v.SetDefault("compose.font_scale", d.Compose.FontScale)
	v.SetDefault("compose.contour_saturation_min", d.Compose.ContourSatMin)
	v.SetDefault("compose.contour_value_min", d.Compose.ContourValMin)
	v.SetDefault("compose.jpeg_quality", d.Compose.JPEGQuality)
	v.SetDefault("compose.match_label", d.Compose.MatchLabel)
	v.SetDefault("compose.match_thickness", d.Compose.MatchThickness)
	v.SetDefault("compose.match_font_scale", d.Compose.MatchFontScale)
	v.SetDefault("compose.label_offset", d.Compose.LabelOffset)

	v.SetDefault("engine.max_concurrent", d.Engine.MaxConcurrent)
	v.SetDefault("engine.queue_timeout", d.Engine.QueueTimeout)
}

func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":8080",
			Mode:         "debug",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			TTL:      24 * time.Hour,
		},
		Upload: UploadConfig{
			MaxSize:      10 * 1024 * 1024,
			AllowedTypes: []string{"image/jpeg", "image/png", "image/jpg"},
		},
		Corpus: CorpusConfig{
			Folder:      "./dataset/images",
			MinROISize:  10,
			MaxFeatures: 500,
		},
		Matcher: MatcherConfig{
			Index:          "kdtree",
			Checks:         0,
			Ratio:          0.6,
			MinGoodMatches: 10,
		},
		Proposal: ProposalConfig{
			LowHueMax:     10,
			HighHueMin:    170,
			HighHueMax:    180,
			MinSaturation: 70,
			MinValue:      70,
			KernelSize:    5,
			MinArea:       300,
		},
		Classifier: ClassifierConfig{
			ModelPath: "./models/svm_speed_limit.yml",
		},
		Compose: ComposeConfig{
			KeypointColor:  "#0000ff",
			MatchBoxColor:  "#00ff00",
			RegionBoxColor: "#00ff00",
			Thickness:      2,
			FontScale:      0.9,
			ContourSatMin:  120,
			ContourValMin:  70,
			JPEGQuality:    95,
			MatchLabel:     "Sign",
			MatchThickness: 3,
			MatchFontScale: 0.8,
			LabelOffset:    10,
		},
		Engine: EngineConfig{
			MaxConcurrent: 3,
			QueueTimeout:  30,
		},
	}
}
