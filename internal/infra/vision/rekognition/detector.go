package rekognition

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	rek "github.com/aws/aws-sdk-go-v2/service/rekognition"
	rektypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/veriscope/veriscope/internal/domain/vision"
)

const (
	maxLabels     = 20
	minConfidence = 50
)

type Detector struct {
	client *rek.Client
}

func NewDetector(client *rek.Client) *Detector {
	return &Detector{client: client}
}

// Detect runs object detection on one image. Confidence comes back as a
// percentage and is normalized to [0,1]; AreaFraction is the largest
// instance bounding box, 0 when the label has no localized instances.
func (d *Detector) Detect(ctx context.Context, image []byte) ([]vision.Label, error) {
	out, err := d.client.DetectLabels(ctx, &rek.DetectLabelsInput{
		Image:         &rektypes.Image{Bytes: image},
		MaxLabels:     aws.Int32(maxLabels),
		MinConfidence: aws.Float32(minConfidence),
	})
	if err != nil {
		var throttle *rektypes.ProvisionedThroughputExceededException
		var limit *rektypes.LimitExceededException
		if errors.As(err, &throttle) || errors.As(err, &limit) {
			return nil, fmt.Errorf("%w: %v", vision.ErrThrottled, err)
		}
		return nil, fmt.Errorf("detect labels: %w", err)
	}

	labels := make([]vision.Label, 0, len(out.Labels))
	for _, l := range out.Labels {
		var area float64
		for _, inst := range l.Instances {
			if inst.BoundingBox == nil {
				continue
			}
			a := float64(aws.ToFloat32(inst.BoundingBox.Width)) * float64(aws.ToFloat32(inst.BoundingBox.Height))
			if a > area {
				area = a
			}
		}
		labels = append(labels, vision.Label{
			Name:         aws.ToString(l.Name),
			Confidence:   float64(aws.ToFloat32(l.Confidence)) / 100,
			AreaFraction: area,
		})
	}
	return labels, nil
}
