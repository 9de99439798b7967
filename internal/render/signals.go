package render

import (
	"fmt"

	"github.com/example/trafficwatch/internal/models"
)

// SignDetection is a road sign seen at a point in the video
type SignDetection struct {
	SignType   string `json:"sign_type"`
	Time       Num    `json:"time"`
	Confidence Num    `json:"confidence"`
}

// RoadSignSummary holds the headline numbers of a road-sign run
type RoadSignSummary struct {
	TotalSigns    Num `json:"total_signs"`
	AvgConfidence Num `json:"avg_confidence"`
}

// RoadSignReport is the reply of the road-sign detector
type RoadSignReport struct {
	AnnotatedVideoURL string              `json:"annotated_video_url,omitempty"`
	Summary           *RoadSignSummary    `json:"summary,omitempty"`
	Detections        List[SignDetection] `json:"detections"`
}

// Shape implements Report
func (RoadSignReport) Shape() string { return ShapeRoadSign }

type roadSignRenderer struct{}

func (roadSignRenderer) Title() string { return "Road Sign Detection" }

func (roadSignRenderer) Normalize(p map[string]any) Report {
	rep := RoadSignReport{
		AnnotatedVideoURL: str(p, "annotated_video_url"),
		Detections: collect(p, "detections", func(m map[string]any) SignDetection {
			return SignDetection{SignType: str(m, "sign_type"), Time: optNumber(m, "time"), Confidence: optNumber(m, "confidence")}
		}),
	}
	if sum, ok := object(p, "summary"); ok {
		rep.Summary = &RoadSignSummary{
			TotalSigns:    optNumber(sum, "total_signs"),
			AvgConfidence: optNumber(sum, "avg_confidence"),
		}
	}
	return rep
}

func (r roadSignRenderer) Summarize(report Report) Summary {
	rep, ok := report.(RoadSignReport)
	if !ok {
		return Summary{Shape: report.Shape(), Title: r.Title()}
	}

	s := Summary{Shape: ShapeRoadSign, Title: r.Title(), MediaURL: rep.AnnotatedVideoURL}
	if sum := rep.Summary; sum != nil {
		s.Sections = append(s.Sections, Section{Title: "Summary", Lines: []string{
			fmt.Sprintf("%s road signs detected with average confidence of %s.", sum.TotalSigns, sum.AvgConfidence.percent()),
		}})
	}

	if sec, ok := listSection("Detections", rep.Detections, "No sign detections found.", func(d SignDetection) []string {
		return []string{fmt.Sprintf("%s sign detected at %s (confidence: %s)", d.SignType, clock(d.Time.Value), d.Confidence.percent())}
	}); ok {
		s.Sections = append(s.Sections, sec)
	}
	return s
}

// Marks returns the time-indexed annotations carried by the report
func (rep RoadSignReport) Marks() []models.AnnotationMark {
	var marks []models.AnnotationMark
	for _, d := range rep.Detections.Items {
		if !d.Time.Set {
			continue
		}
		marks = append(marks, models.AnnotationMark{
			TimeSeconds: d.Time.Value,
			Category:    models.MarkRoadSign,
			Description: fmt.Sprintf("%s sign", d.SignType),
			Confidence:  d.Confidence.Value,
		})
	}
	return marks
}

// LightViolation is one red-light crossing
type LightViolation struct {
	VehicleID       string `json:"vehicle_id"`
	FrameNumber     string `json:"frame_number"`
	Confidence      Num    `json:"confidence"`
	DetectionMethod string `json:"detection_method,omitempty"`
	Timestamp       string `json:"timestamp,omitempty"`
}

// TrafficLightSummary holds the counts and the violations of a run
type TrafficLightSummary struct {
	TotalFrames     Num                  `json:"total_frames"`
	TotalViolations Num                  `json:"total_violations"`
	UniqueViolators Num                  `json:"unique_violators"`
	Violations      List[LightViolation] `json:"violations"`
}

// TrafficLightReport is the reply of the traffic-light detector
type TrafficLightReport struct {
	OutputPath string               `json:"output_path,omitempty"`
	Summary    *TrafficLightSummary `json:"summary,omitempty"`
}

// Shape implements Report
func (TrafficLightReport) Shape() string { return ShapeTrafficLight }

type trafficLightRenderer struct{}

func (trafficLightRenderer) Title() string { return "Traffic Light Violations" }

func (trafficLightRenderer) Normalize(p map[string]any) Report {
	rep := TrafficLightReport{OutputPath: str(p, "output_path")}
	if sum, ok := object(p, "summary"); ok {
		rep.Summary = &TrafficLightSummary{
			TotalFrames:     optNumber(sum, "total_frames"),
			TotalViolations: optNumber(sum, "total_violations"),
			UniqueViolators: optNumber(sum, "unique_violators"),
			Violations: collect(sum, "violations", func(m map[string]any) LightViolation {
				return LightViolation{
					VehicleID:       str(m, "vehicle_id"),
					FrameNumber:     str(m, "frame_number"),
					Confidence:      optNumber(m, "confidence"),
					DetectionMethod: str(m, "detection_method"),
					Timestamp:       str(m, "timestamp"),
				}
			}),
		}
	}
	return rep
}

func (r trafficLightRenderer) Summarize(report Report) Summary {
	rep, ok := report.(TrafficLightReport)
	if !ok {
		return Summary{Shape: report.Shape(), Title: r.Title()}
	}

	s := Summary{Shape: ShapeTrafficLight, Title: r.Title(), MediaURL: rep.OutputPath}
	sum := rep.Summary
	if sum == nil {
		return s
	}

	s.Sections = append(s.Sections, Section{Title: "Summary", Lines: []string{
		"Total frames: " + sum.TotalFrames.String(),
		"Total violations: " + sum.TotalViolations.String(),
		"Unique violators: " + sum.UniqueViolators.String(),
	}})

	if sec, ok := listSection("Violations", sum.Violations, "No red-light violations found.", func(v LightViolation) []string {
		line := fmt.Sprintf("Vehicle %s at frame %s (confidence: %s", v.VehicleID, v.FrameNumber, v.Confidence.percent())
		if v.DetectionMethod != "" {
			line += ", method: " + v.DetectionMethod
		}
		line += ")"
		if v.Timestamp != "" {
			line += " at " + v.Timestamp
		}
		return []string{line}
	}); ok {
		s.Sections = append(s.Sections, sec)
	}
	return s
}

// Marks extracts annotation marks from any report that carries them
func Marks(report Report) []models.AnnotationMark {
	if m, ok := report.(interface{ Marks() []models.AnnotationMark }); ok {
		return m.Marks()
	}
	return nil
}

func init() {
	Register(ShapeRoadSign, roadSignRenderer{})
	Register(ShapeTrafficLight, trafficLightRenderer{})
}
