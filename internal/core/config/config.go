// Package config reads the viewer configuration from the environment and the
// layer manifest from YAML.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type TreeCfg struct {
	// Bounds is "minLon,minLat,maxLon,maxLat" in EPSG:4326; empty means the world.
	Bounds      string
	MaxMappings int
	MaxDepth    int
}

type SelectionCfg struct {
	MinClickDistance        float64
	RepeatWindow            time.Duration
	FilterDuplicateFeatures bool
	HighlightColor          string
	PickTolerance           float64
	MaxRayDistance          float64
	DragThreshold           float64
}

type CameraCfg struct {
	Lon            float64
	Lat            float64
	MetersPerPixel float64
	Width          int
	Height         int
}

type TileStreamCfg struct {
	Enabled     bool
	Topic       string
	GroupID     string
	Queue       int
	MaxPerFrame int
}

type SelectEventsCfg struct {
	Enabled bool
	Topic   string
	Queue   int
}

type Config struct {
	Addr         string
	LogLevel     string
	LogConsole   bool
	LogSampleN   int
	FrameRate    int
	LayersFile   string
	RedisAddr    string
	RedisPool    int
	RedisDial    time.Duration
	RedisRead    time.Duration
	AttrTTL      time.Duration
	KafkaBrokers string
	ExprCache    int

	MetricsEnabled bool
	MetricsAddr    string
	MetricsPath    string

	Tree         TreeCfg
	Selection    SelectionCfg
	Camera       CameraCfg
	TileStream   TileStreamCfg
	SelectEvents SelectEventsCfg
}

func FromEnv() Config {
	frameRate := getint("FRAME_RATE", 60)
	if frameRate <= 0 {
		frameRate = 60
	}

	return Config{
		Addr:         getenv("ADDR", ":8090"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		LogConsole:   getbool("LOG_CONSOLE", false),
		LogSampleN:   getint("LOG_SAMPLE_N", 0),
		FrameRate:    frameRate,
		LayersFile:   getenv("LAYERS_FILE", "layers.yaml"),
		RedisAddr:    getenv("REDIS_ADDR", ""),
		RedisPool:    getint("REDIS_POOL_SIZE", 16),
		RedisDial:    getduration("REDIS_DIAL_TIMEOUT", 2*time.Second),
		RedisRead:    getduration("REDIS_READ_TIMEOUT", time.Second),
		AttrTTL:      getduration("ATTR_TTL", 0),
		KafkaBrokers: getenv("KAFKA_BROKERS", "localhost:9092"),
		ExprCache:    getint("EXPR_CACHE_SIZE", 256),

		MetricsEnabled: getbool("METRICS_ENABLED", false),
		MetricsAddr:    getenv("METRICS_ADDR", ":9090"),
		MetricsPath:    getenv("METRICS_PATH", "/metrics"),

		Tree: TreeCfg{
			Bounds:      getenv("TREE_BOUNDS", ""),
			MaxMappings: getint("TREE_MAX_MAPPINGS", 16),
			MaxDepth:    getint("TREE_MAX_DEPTH", 12),
		},
		Selection: SelectionCfg{
			MinClickDistance:        getfloat("CLICK_MIN_DISTANCE", 5),
			RepeatWindow:            getduration("CLICK_REPEAT_WINDOW", 2*time.Second),
			FilterDuplicateFeatures: getbool("FILTER_DUPLICATE_FEATURES", true),
			HighlightColor:          getenv("HIGHLIGHT_COLOR", "#ffd700"),
			PickTolerance:           getfloat("PICK_TOLERANCE", 3),
			MaxRayDistance:          getfloat("MAX_RAY_DISTANCE", 50_000),
			DragThreshold:           getfloat("DRAG_THRESHOLD", 4),
		},
		Camera: CameraCfg{
			Lon:            getfloat("CAMERA_LON", 18.07),
			Lat:            getfloat("CAMERA_LAT", 59.33),
			MetersPerPixel: getfloat("CAMERA_METERS_PER_PIXEL", 1),
			Width:          getint("VIEW_WIDTH", 1280),
			Height:         getint("VIEW_HEIGHT", 720),
		},
		TileStream: TileStreamCfg{
			Enabled:     getbool("TILE_STREAM_ENABLED", false),
			Topic:       getenv("TILE_TOPIC", "tile-events"),
			GroupID:     getenv("TILE_GROUP_ID", "geotwin-viewer"),
			Queue:       getint("TILE_QUEUE", 1024),
			MaxPerFrame: getint("TILE_MAX_PER_FRAME", 256),
		},
		SelectEvents: SelectEventsCfg{
			Enabled: getbool("SELECT_EVENTS_ENABLED", false),
			Topic:   getenv("SELECT_EVENTS_TOPIC", "selection-events"),
			Queue:   getint("SELECT_EVENTS_QUEUE", 1024),
		},
	}
}

// FrameInterval is the target duration of one frame.
func (c Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.FrameRate)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
