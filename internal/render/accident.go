package render

import (
	"fmt"
	"strings"
)

// VehicleDetection is one detected vehicle box
type VehicleDetection struct {
	BBox       []float64 `json:"bbox"`
	Confidence Num       `json:"confidence"`
}

// Collision is a pair of tracks that came into contact
type Collision struct {
	TrackIDs []string `json:"track_ids"`
}

// AccidentConfirmation is the classifier's verdict on a collision
type AccidentConfirmation struct {
	IsAccident bool      `json:"is_accident"`
	Confidence Num       `json:"confidence"`
	BBox       []float64 `json:"bbox,omitempty"`
}

// AccidentReport is the reply of the accident detectors
type AccidentReport struct {
	Detections        List[VehicleDetection]     `json:"detections"`
	Collisions        List[Collision]            `json:"collisions"`
	Accidents         List[AccidentConfirmation] `json:"accidents"`
	AnnotatedImageURL string                     `json:"annotated_image_url,omitempty"`
}

// Shape implements Report
func (AccidentReport) Shape() string { return ShapeAccident }

type accidentRenderer struct{}

func (accidentRenderer) Title() string { return "Accident Detection" }

func (accidentRenderer) Normalize(p map[string]any) Report {
	return AccidentReport{
		Detections: collect(p, "detections", func(m map[string]any) VehicleDetection {
			return VehicleDetection{BBox: numbers(m["bbox"]), Confidence: optNumber(m, "confidence")}
		}),
		Collisions: collect(p, "collisions", func(m map[string]any) Collision {
			return Collision{TrackIDs: strs(m["track_ids"])}
		}),
		Accidents: collect(p, "accidents", func(m map[string]any) AccidentConfirmation {
			isAccident, _ := boolean(m, "is_accident")
			return AccidentConfirmation{IsAccident: isAccident, Confidence: optNumber(m, "confidence"), BBox: numbers(m["bbox"])}
		}),
		AnnotatedImageURL: str(p, "annotated_image_url"),
	}
}

func (r accidentRenderer) Summarize(report Report) Summary {
	rep, ok := report.(AccidentReport)
	if !ok {
		return Summary{Shape: report.Shape(), Title: r.Title()}
	}

	s := Summary{Shape: ShapeAccident, Title: r.Title(), MediaURL: rep.AnnotatedImageURL}

	if sec, ok := listSection("Vehicle Detections", rep.Detections, "No vehicle detections found.", func(d VehicleDetection) []string {
		return []string{fmt.Sprintf("BBox: %s | Confidence: %s", formatBox(d.BBox), d.Confidence.percent())}
	}); ok {
		s.Sections = append(s.Sections, sec)
	}

	if sec, ok := listSection("Possible Collisions", rep.Collisions, "No collisions found.", func(c Collision) []string {
		ids := "unknown"
		if len(c.TrackIDs) > 0 {
			ids = strings.Join(c.TrackIDs, " & ")
		}
		return []string{"Track IDs: " + ids}
	}); ok {
		s.Sections = append(s.Sections, sec)
	}

	if sec, ok := listSection("Accident Confirmations", rep.Accidents, "No accident confirmations found.", func(a AccidentConfirmation) []string {
		status := "No Accident"
		if a.IsAccident {
			status = "Accident Detected"
		}
		line := fmt.Sprintf("Status: %s | Confidence: %s", status, a.Confidence.percent())
		if len(a.BBox) > 0 {
			line += " | Bounding Box: " + formatBox(a.BBox)
		}
		return []string{line}
	}); ok {
		s.Sections = append(s.Sections, sec)
	}

	return s
}

func init() {
	Register(ShapeAccident, accidentRenderer{})
}
