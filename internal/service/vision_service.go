package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"proctor_backend/internal/config"
	"proctor_backend/internal/model"
	"proctor_backend/internal/repository"
	"proctor_backend/internal/util"
	"proctor_backend/pkg/logger"
	"proctor_backend/pkg/tracing"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Detection is one labelled box returned by the object detection service.
type Detection struct {
	Class       string    `json:"class"`
	Confidence  int       `json:"confidence"`
	BoundingBox []float64 `json:"bounding box"`
}

// VisionClient talks to the remote object detection and face recognition services.
type VisionClient interface {
	Detect(ctx context.Context, image []byte, filename string) ([]Detection, error)
	VerifyFace(ctx context.Context, image []byte, reference string) (bool, error)
}

type HTTPVisionClient struct {
	Cfg    *config.VisionConfig
	Client *http.Client
}

func NewHTTPVisionClient(cfg *config.VisionConfig) *HTTPVisionClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPVisionClient{Cfg: cfg, Client: &http.Client{Timeout: timeout}}
}

func (c *HTTPVisionClient) post(ctx context.Context, url string, image []byte, filename string, fields map[string]string, out interface{}) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("images", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(image); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("vision service %s returned %d: %s", url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPVisionClient) Detect(ctx context.Context, image []byte, filename string) ([]Detection, error) {
	ctx, span := tracing.StartSpan(ctx, "vision.detect")
	var detections []Detection
	err := c.post(ctx, c.Cfg.DetectionURL, image, filename, nil, &detections)
	tracing.EndSpan(span, err)
	return detections, err
}

func (c *HTTPVisionClient) VerifyFace(ctx context.Context, image []byte, reference string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "vision.verify_face")
	var out struct {
		Match bool `json:"match"`
	}
	err := c.post(ctx, c.Cfg.RecognitionURL, image, "frame.jpg", map[string]string{"reference": reference}, &out)
	tracing.EndSpan(span, err)
	return out.Match, err
}

// FrameService turns webcam frames into warnings.
type FrameService struct {
	Vision   VisionClient
	Warnings *WarningService
	Users    *repository.UserRepository
	Cfg      *config.VisionConfig
}

func NewFrameService(vision VisionClient, warnings *WarningService, users *repository.UserRepository, cfg *config.VisionConfig) *FrameService {
	return &FrameService{Vision: vision, Warnings: warnings, Users: users, Cfg: cfg}
}

type FrameAnalysis struct {
	Detections []Detection
	Findings   []string
	Warnings   []*WarningResult
	Terminated bool
}

// Findings lists what in a set of detections is worth a warning.
func (s *FrameService) Findings(detections []Detection) []string {
	unallowed := make(map[string]bool, len(s.Cfg.UnallowedClasses))
	for _, c := range s.Cfg.UnallowedClasses {
		unallowed[strings.ToLower(c)] = true
	}

	var findings []string
	seen := map[string]bool{}
	people := 0
	for _, d := range detections {
		if d.Confidence < s.Cfg.MinConfidence {
			continue
		}
		class := strings.ToLower(d.Class)
		if class == "person" || class == "human face" {
			if class == "person" {
				people++
			}
			continue
		}
		if unallowed[class] && !seen[class] {
			seen[class] = true
			findings = append(findings, "Unallowed object detected: "+d.Class)
		}
	}
	if people > 1 {
		findings = append(findings, fmt.Sprintf("Multiple people detected (%d)", people))
	}
	return findings
}

// Analyze checks one frame of a recording and files a warning per finding.
// It stops early once the recording has been terminated.
func (s *FrameService) Analyze(ctx context.Context, actorID, recordingID uint, image []byte, filename string) (*FrameAnalysis, error) {
	if len(image) == 0 {
		return nil, util.NewMissingFieldsError("frame")
	}
	recordings := s.Warnings.Recordings
	row, err := recordings.Recordings.FindRow(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if err := s.Warnings.Guard.RequireSelfOrExaminer(ctx, actorID, row.UserID); err != nil {
		return nil, err
	}
	if err := recordings.expire(ctx, row); err != nil {
		return nil, err
	}
	if row.State() == model.RecordingEnded {
		return nil, util.WithEntity(util.ErrAlreadyEnded, recordingID)
	}

	detections, err := s.Vision.Detect(ctx, image, filename)
	if err != nil {
		return nil, util.NewStorageError(err)
	}
	analysis := &FrameAnalysis{Detections: detections, Findings: s.Findings(detections)}

	if s.Cfg.RecognitionURL != "" {
		user, err := s.Users.FindByID(ctx, row.UserID)
		if err != nil {
			return nil, err
		}
		if user.AuthImage != "" {
			match, err := s.Vision.VerifyFace(ctx, image, user.AuthImage)
			if err != nil {
				logger.Log.Warn("Face verification failed", zap.Uint("recordingId", recordingID), zap.Error(err))
			} else if !match {
				analysis.Findings = append(analysis.Findings, "Face does not match the registered image")
			}
		}
	}

	_, span := tracing.StartSpan(ctx, "frame.findings", attribute.Int("findings", len(analysis.Findings)))
	defer span.End()
	for _, finding := range analysis.Findings {
		res, err := s.Warnings.record(ctx, row, finding, "")
		if err != nil {
			return nil, err
		}
		analysis.Warnings = append(analysis.Warnings, res)
		if res.Terminated {
			analysis.Terminated = true
			now := res.Warning.WarningTime
			row.TimeEnded = &now
			break
		}
	}
	return analysis, nil
}
