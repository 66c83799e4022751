package schema

// ZoomLevels lists the zoom percentages addressable by a zoom level index.
var ZoomLevels = []int{30, 40, 50, 67, 80, 90, 100, 110, 120, 133, 150, 170, 200, 220, 233, 250, 270, 285, 300}

// DefaultZoomLevel is the index of 100% in ZoomLevels.
const DefaultZoomLevel = 6

// ClampZoomLevel bounds level to a valid ZoomLevels index.
func ClampZoomLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level >= len(ZoomLevels) {
		return len(ZoomLevels) - 1
	}
	return level
}

// ZoomFactor returns the scale factor for a zoom level (1.0 at 100%).
func ZoomFactor(level int) float64 {
	return float64(ZoomLevels[ClampZoomLevel(level)]) / 100
}
