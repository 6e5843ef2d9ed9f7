package detector

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// category is a MediaPipe classification entry.
type category struct {
	CategoryName string  `json:"categoryName"`
	DisplayName  string  `json:"displayName"`
	Score        float64 `json:"score"`
}

type matrix struct {
	Rows    int       `json:"rows"`
	Columns int       `json:"columns"`
	Data    []float64 `json:"data"`
}

// rawResult accepts every result shape the detector services emit:
// tasks-vision ("handLandmarks"/"handednesses"), the older tasks-vision names
// ("landmarks"/"handedness"), the face landmarker and the flat "hands" list.
type rawResult struct {
	HandLandmarks [][]Point3D  `json:"handLandmarks"`
	Handednesses  [][]category `json:"handednesses"`

	Landmarks  [][]Point3D  `json:"landmarks"`
	Handedness [][]category `json:"handedness"`

	FaceLandmarks  [][]Point3D `json:"faceLandmarks"`
	FaceTransforms []matrix    `json:"facialTransformationMatrixes"`

	Hands []jsonHand `json:"hands"`

	Error string `json:"error"`
}

// jsonHand is the flat per-hand structure.
type jsonHand struct {
	Points     []Point3D `json:"points"`
	Handedness string    `json:"handedness"`
	Score      float64   `json:"score"`
}

// DecodeResult parses one detector response line into landmark sets.
func DecodeResult(data []byte) ([]LandmarkSet, error) {
	var raw rawResult
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if raw.Error != "" {
		return nil, fmt.Errorf("detector: %s", raw.Error)
	}

	var sets []LandmarkSet

	hands, labels := raw.HandLandmarks, raw.Handednesses
	if len(hands) == 0 {
		hands = raw.Landmarks
	}
	if len(labels) == 0 {
		labels = raw.Handedness
	}
	for i, pts := range hands {
		set := LandmarkSet{Kind: KindHand, Points: pts}
		if i < len(labels) && len(labels[i]) > 0 {
			set.Label = labels[i][0].name()
			set.Score = labels[i][0].Score
		}
		sets = append(sets, set)
	}

	for _, h := range raw.Hands {
		sets = append(sets, LandmarkSet{
			Kind:   KindHand,
			Points: h.Points,
			Label:  h.Handedness,
			Score:  h.Score,
		})
	}

	for i, pts := range raw.FaceLandmarks {
		set := LandmarkSet{Kind: KindFace, Points: pts}
		if i < len(raw.FaceTransforms) && len(raw.FaceTransforms[i].Data) >= 16 {
			set.Transform = raw.FaceTransforms[i].Data
		}
		sets = append(sets, set)
	}

	return sets, nil
}

func (c category) name() string {
	if c.CategoryName != "" {
		return c.CategoryName
	}
	return c.DisplayName
}
