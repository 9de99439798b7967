package playback

import (
	"sort"

	"github.com/example/trafficwatch/internal/models"
)

// Sample is a demo clip with the marks drawn over it
type Sample struct {
	Video string                  `json:"video"`
	Marks []models.AnnotationMark `json:"marks"`
}

func box(x, y, w, h float64) *models.BoundingBox {
	return &models.BoundingBox{X: x, Y: y, Width: w, Height: h}
}

var samples = map[string]Sample{
	"accident": {
		Video: "https://assets.mixkit.co/videos/preview/mixkit-cars-driving-on-a-highway-under-a-blue-sky-41166-large.mp4",
		Marks: []models.AnnotationMark{
			{TimeSeconds: 2.5, Category: models.MarkAccident, Description: "Vehicle collision detected", Confidence: 0.95, BoundingBox: box(0.3, 0.4, 0.4, 0.3)},
			{TimeSeconds: 5.2, Category: models.MarkSpeed, Description: "Vehicle exceeding speed limit", Confidence: 0.87, BoundingBox: box(0.1, 0.5, 0.2, 0.2)},
			{TimeSeconds: 8.7, Category: models.MarkLane, Description: "Improper lane change", Confidence: 0.91, BoundingBox: box(0.6, 0.5, 0.25, 0.25)},
		},
	},
	"traffic-light": {
		Video: "src/inputs/highway.mp4",
		Marks: []models.AnnotationMark{
			{TimeSeconds: 2.1, Category: models.MarkTrafficLight, Description: "Red light violation", Confidence: 0.96, BoundingBox: box(0.5, 0.4, 0.2, 0.15)},
			{TimeSeconds: 5.4, Category: models.MarkTrafficLight, Description: "Stopping beyond stop line", Confidence: 0.88, BoundingBox: box(0.3, 0.5, 0.2, 0.15)},
			{TimeSeconds: 8.9, Category: models.MarkTrafficLight, Description: "Not stopping at amber light", Confidence: 0.85, BoundingBox: box(0.7, 0.4, 0.2, 0.15)},
		},
	},
	"speed": {
		Video: "src/inputs/highway.mp4",
		Marks: []models.AnnotationMark{
			{TimeSeconds: 1.5, Category: models.MarkSpeed, Description: "Vehicle exceeding speed limit by 15mph", Confidence: 0.94, BoundingBox: box(0.6, 0.5, 0.25, 0.2)},
			{TimeSeconds: 4.7, Category: models.MarkSpeed, Description: "Vehicle exceeding speed limit by 8mph", Confidence: 0.91, BoundingBox: box(0.2, 0.5, 0.25, 0.2)},
			{TimeSeconds: 7.2, Category: models.MarkSpeed, Description: "Vehicle exceeding speed limit by 22mph", Confidence: 0.97, BoundingBox: box(0.4, 0.5, 0.25, 0.2)},
		},
	},
	"road-sign": {
		Video: "src/inputs/highway.mp4",
		Marks: []models.AnnotationMark{
			{TimeSeconds: 2.3, Category: models.MarkRoadSign, Description: "Stop sign violation", Confidence: 0.92, BoundingBox: box(0.5, 0.4, 0.2, 0.15)},
			{TimeSeconds: 5.1, Category: models.MarkRoadSign, Description: "No entry violation", Confidence: 0.89, BoundingBox: box(0.3, 0.5, 0.2, 0.15)},
			{TimeSeconds: 8.6, Category: models.MarkRoadSign, Description: "No U-turn violation", Confidence: 0.94, BoundingBox: box(0.6, 0.5, 0.2, 0.15)},
		},
	},
}

// SampleFor returns the demo clip for a category name. The marks are a copy.
func SampleFor(name string) (Sample, bool) {
	s, ok := samples[name]
	if !ok {
		return Sample{}, false
	}
	s.Marks = append([]models.AnnotationMark(nil), s.Marks...)
	return s, true
}

// SampleNames lists the available demo clips
func SampleNames() []string {
	names := make([]string, 0, len(samples))
	for name := range samples {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
