package detector

import (
	"fmt"
	"math"
)

// FacePairs are the symmetric face mesh landmark pairs the face model
// consumes as features.
var FacePairs = [][2]int{
	{61, 291}, {48, 278}, {123, 352}, {132, 361},
	{55, 285}, {33, 263}, {133, 362}, {65, 295},
	{81, 311}, {91, 321}, {145, 374}, {159, 385},
	{57, 287}, {50, 280}, {234, 454}, {93, 323},
}

// FeaturePointIndexes lists every landmark referenced by FacePairs, in pair
// order. These are the points drawn on an annotated capture.
func FeaturePointIndexes() []int {
	idx := make([]int, 0, len(FacePairs)*2)
	for _, p := range FacePairs {
		idx = append(idx, p[0], p[1])
	}
	return idx
}

// FaceFeatures computes the pair features for a face mesh in the detector's
// own (unmirrored) coordinate system. For each pair (a, b) it emits
// AI_x_a_b and AI_y_a_b (a minus b) and angle_a_b, the direction from a to b
// in degrees. Pairs with a missing landmark are skipped.
func FaceFeatures(face LandmarkSet) map[string]float64 {
	f := make(map[string]float64, len(FacePairs)*3)
	for _, p := range FacePairs {
		pa, okA := face.Point(p[0])
		pb, okB := face.Point(p[1])
		if !okA || !okB {
			continue
		}
		key := fmt.Sprintf("%d_%d", p[0], p[1])
		f["AI_x_"+key] = pa.X - pb.X
		f["AI_y_"+key] = pa.Y - pb.Y
		f["angle_"+key] = math.Atan2(pb.Y-pa.Y, pb.X-pa.X) * 180 / math.Pi
	}
	return f
}
