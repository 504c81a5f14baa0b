package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port int

	CameraSource      string  // Numeric string = device index, anything else = URI
	CameraDeviceIndex int     // Used when CameraSource is empty
	CameraMaxFPS      float64 // Default webcam output rate
	VideoFallbackFPS  float64 // Used when the container carries no frame rate

	PreviewMaxWidth int
	PreviewQuality  int

	ModelPath          string
	ModelConfigPath    string
	ModelClasses       []string // Class names in model id order
	DangerClasses      []string
	DetectionThreshold float64
	NMSThreshold       float64
	ModelInputSize     int
	ProcessingWorkers  int // One detector instance per worker

	TempDirectory   string
	MaxUploadBytes  int64
	YtDlpPath       string
	DownloadTimeout int // Seconds

	DatabasePath string // Empty disables the session audit store
	LogDirectory string
	LogLevel     string
}

// Load reads .env (if present), an optional visionengine.yaml and the
// environment, in that order of increasing precedence.
func Load() *Config {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("visionengine")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	return &Config{
		Port:               getInt(v, "PORT", 8000),
		CameraSource:       strings.TrimSpace(getString(v, "CAMERA_SOURCE", "")),
		CameraDeviceIndex:  getInt(v, "CAMERA_DEVICE_INDEX", 0),
		CameraMaxFPS:       getFloat(v, "CAMERA_MAX_FPS", 10.0),
		VideoFallbackFPS:   getFloat(v, "VIDEO_FALLBACK_FPS", 25.0),
		PreviewMaxWidth:    getInt(v, "PREVIEW_MAX_WIDTH", 960),
		PreviewQuality:     getInt(v, "PREVIEW_QUALITY", 70),
		ModelPath:          getString(v, "MODEL_PATH", filepath.Join(".", "models", "danger.onnx")),
		ModelConfigPath:    getString(v, "MODEL_CONFIG_PATH", ""),
		ModelClasses:       getList(v, "MODEL_CLASSES", []string{"fire", "smoke", "person"}),
		DangerClasses:      getList(v, "DANGER_CLASSES", []string{"fire", "smoke", "person"}),
		DetectionThreshold: getFloat(v, "DETECTION_THRESHOLD", 0.25),
		NMSThreshold:       getFloat(v, "NMS_THRESHOLD", 0.45),
		ModelInputSize:     getInt(v, "MODEL_INPUT_SIZE", 640),
		ProcessingWorkers:  getInt(v, "PROCESSING_WORKERS", 2),
		TempDirectory:      getString(v, "TEMP_DIR", os.TempDir()),
		MaxUploadBytes:     getInt64(v, "MAX_UPLOAD_MB", 512) << 20,
		YtDlpPath:          getString(v, "YTDLP_PATH", "yt-dlp"),
		DownloadTimeout:    getInt(v, "DOWNLOAD_TIMEOUT_SECONDS", 600),
		DatabasePath:       getString(v, "DB_PATH", filepath.Join(".", "data", "sessions.db")),
		LogDirectory:       getString(v, "LOG_DIR", filepath.Join(".", "logs")),
		LogLevel:           getString(v, "LOG_LEVEL", "info"),
	}
}

func getString(v *viper.Viper, key, defaultValue string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return defaultValue
}

func getInt(v *viper.Viper, key string, defaultValue int) int {
	if value := v.GetString(key); value != "" {
		if intValue, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getInt64(v *viper.Viper, key string, defaultValue int64) int64 {
	if value := v.GetString(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloat(v *viper.Viper, key string, defaultValue float64) float64 {
	if value := v.GetString(key); value != "" {
		if floatValue, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getList splits a comma separated value, dropping empty items.
func getList(v *viper.Viper, key string, defaultValue []string) []string {
	value := v.GetString(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
