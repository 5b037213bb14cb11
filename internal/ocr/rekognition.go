package ocr

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/lehigh-university-libraries/platereader/internal/imageproc"
	"github.com/lehigh-university-libraries/platereader/internal/models"
)

type textDetector interface {
	DetectText(ctx context.Context, params *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error)
}

// RekognitionEngine reads text with AWS Rekognition DetectText.
type RekognitionEngine struct {
	client textDetector
}

func NewRekognitionEngine(ctx context.Context, region string) (*RekognitionEngine, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	slog.Info("Loaded AWS config for Rekognition", "region", region)
	return &RekognitionEngine{client: rekognition.NewFromConfig(awsCfg)}, nil
}

func (e *RekognitionEngine) Recognize(ctx context.Context, img image.Image) ([]models.OCRCandidate, error) {
	data, err := imageproc.EncodePNG(img)
	if err != nil {
		return nil, &RecognitionError{Engine: "rekognition", Err: err}
	}

	out, err := e.client.DetectText(ctx, &rekognition.DetectTextInput{
		Image: &types.Image{Bytes: data},
	})
	if err != nil {
		return nil, &RecognitionError{Engine: "rekognition", Err: err}
	}

	candidates := make([]models.OCRCandidate, 0, len(out.TextDetections))
	for _, d := range out.TextDetections {
		// WORD entries repeat the text of their LINE
		if d.Type != types.TextTypesLine {
			continue
		}
		candidates = append(candidates, models.OCRCandidate{
			Text:       aws.ToString(d.DetectedText),
			Confidence: clampConfidence(float64(aws.ToFloat32(d.Confidence)) / 100),
		})
	}
	slog.Debug("Rekognition returned text", "detections", len(out.TextDetections), "lines", len(candidates))
	return candidates, nil
}

func (e *RekognitionEngine) Close() error { return nil }
