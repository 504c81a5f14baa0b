package ai

import (
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"

	"visionengine/internal/config"
	"visionengine/internal/dto"
	"visionengine/internal/logger"
	"visionengine/internal/service/ai/decode"
)

// DetectorService runs the danger detection network on single frames.
// It is not safe for concurrent use; the inference pool gives every worker
// its own instance.
type DetectorService struct {
	net        gocv.Net
	modelPath  string
	configPath string
	inputSize  int
	threshold  float64
	nms        float64
	labeler    *decode.Labeler
	logger     *logger.Logger
}

// NewDetectorService loads the network named by the configuration.
func NewDetectorService(config *config.Config, logger *logger.Logger) (*DetectorService, error) {
	service := &DetectorService{
		modelPath:  config.ModelPath,
		configPath: config.ModelConfigPath,
		inputSize:  config.ModelInputSize,
		threshold:  config.DetectionThreshold,
		nms:        config.NMSThreshold,
		labeler:    decode.NewLabeler(config.ModelClasses, config.DangerClasses),
		logger:     logger,
	}
	if service.inputSize <= 0 {
		service.inputSize = 640
	}

	if err := service.initializeNet(); err != nil {
		return nil, err
	}
	return service, nil
}

// initializeNet loads the DNN network and sets backend/target preferences.
func (s *DetectorService) initializeNet() error {
	if _, err := os.Stat(s.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", s.modelPath)
	}
	if s.configPath != "" {
		if _, err := os.Stat(s.configPath); os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", s.configPath)
		}
	}

	net := gocv.ReadNet(s.modelPath, s.configPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network from %s", s.modelPath)
	}
	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	s.net = net
	s.logger.Info("Detection network %s initialized", s.modelPath)
	return nil
}

// DetectImage returns the danger detections of img in pixel coordinates.
func (s *DetectorService) DetectImage(img image.Image) ([]dto.Detection, error) {
	if s.net.Empty() {
		return nil, fmt.Errorf("detection network not initialized")
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("frame is empty")
	}

	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(s.inputSize, s.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read network output: %w", err)
	}

	geometry := decode.Geometry{InputSize: s.inputSize, ImageWidth: mat.Cols(), ImageHeight: mat.Rows()}
	candidates, err := decode.Decode(data, output.Size(), geometry, s.threshold)
	if err != nil {
		return nil, err
	}

	detections := s.labeler.Finalize(decode.NMS(candidates, s.nms), mat.Cols(), mat.Rows())
	for _, d := range detections {
		s.logger.Debug("Detected %s (%.2f)", d.Class, d.Confidence)
	}
	return detections, nil
}

// Close releases the network.
func (s *DetectorService) Close() error {
	if s.net.Empty() {
		return nil
	}
	return s.net.Close()
}
