package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// Endpoint paths.
const (
	PathArmPredict  = "/api/v1/arm/predict"
	PathFacePredict = "/api/v1/measure/face/predict"
	PathFaceUpload  = "/api/v1/measure/face/upload"
)

// ArmResult is the arm model verdict. Label is "detected" or "normal".
type ArmResult struct {
	ID         int64    `json:"id"`
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence"`
}

// FacePrediction is the face model verdict for one frame.
type FacePrediction struct {
	Modality  string             `json:"modality"`
	PredProba float64            `json:"pred_proba"`
	PredLabel int                `json:"pred_label"`
	Features  map[string]float64 `json:"features"`
}

// FaceRecord is the stored face result.
type FaceRecord struct {
	FaceID     int64  `json:"face_id"`
	UserID     string `json:"user_id"`
	ResultText string `json:"result_text"`
	CreatedAt  string `json:"created_at"`
}

// PredictArm submits the start and end stills of the arm drift test.
func (c *Client) PredictArm(ctx context.Context, start, end Part) (ArmResult, error) {
	start.Field = "start_file"
	end.Field = "end_file"

	var res ArmResult
	if err := c.postMultipart(ctx, PathArmPredict, []Part{start, end}, nil, &res); err != nil {
		return ArmResult{}, fmt.Errorf("arm predict: %w", err)
	}
	return res, nil
}

// PredictFace runs the face model on one frame.
func (c *Client) PredictFace(ctx context.Context, frame Part) (FacePrediction, error) {
	frame.Field = "file"

	var res FacePrediction
	if err := c.postMultipart(ctx, PathFacePredict, []Part{frame}, nil, &res); err != nil {
		return FacePrediction{}, fmt.Errorf("face predict: %w", err)
	}
	return res, nil
}

// UploadFace stores a face frame with its predicted label and landmark
// features. A nil label is omitted and the backend derives the result.
func (c *Client) UploadFace(ctx context.Context, frame Part, predLabel *int, features map[string]float64) (FaceRecord, error) {
	frame.Field = "image"

	fields := map[string]string{}
	if predLabel != nil {
		fields["pred_label"] = strconv.Itoa(*predLabel)
	}
	if len(features) > 0 {
		raw, err := json.Marshal(features)
		if err != nil {
			return FaceRecord{}, fmt.Errorf("encode features: %w", err)
		}
		fields["features_json"] = string(raw)
	}

	var res FaceRecord
	if err := c.postMultipart(ctx, PathFaceUpload, []Part{frame}, fields, &res); err != nil {
		return FaceRecord{}, fmt.Errorf("face upload: %w", err)
	}
	return res, nil
}

// ArmImage fetches a stored arm still. which is "start" or "end".
func (c *Client) ArmImage(ctx context.Context, id int64, which string) ([]byte, string, error) {
	if which != "start" && which != "end" {
		return nil, "", fmt.Errorf("unknown arm image %q", which)
	}
	path := fmt.Sprintf("/api/v1/arm/%d/image/%s", id, which)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", "image/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", &APIError{Status: resp.StatusCode, Message: errorMessage(resp, body)}
	}
	return body, resp.Header.Get("Content-Type"), nil
}
