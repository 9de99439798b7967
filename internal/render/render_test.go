package render

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/example/trafficwatch/internal/models"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return payload
}

func section(s Summary, title string) (Section, bool) {
	for _, sec := range s.Sections {
		if sec.Title == title {
			return sec, true
		}
	}
	return Section{}, false
}

func TestDetailRendersOnlyFailure(t *testing.T) {
	for _, shape := range DefaultRegistry.Shapes() {
		t.Run(shape, func(t *testing.T) {
			payload := decode(t, `{"detail":"Upload or processing failed.","detections":[{"confidence":0.9}],"summary":{"total_signs":3}}`)

			rep := Normalize(shape, payload)
			if _, ok := rep.(Failure); !ok {
				t.Fatalf("expected Failure, got %T", rep)
			}

			s := Summarize(rep)
			if s.Failure != "Upload or processing failed." {
				t.Errorf("unexpected failure text %q", s.Failure)
			}
			if len(s.Sections) != 0 {
				t.Errorf("failure must be the sole output, got %d sections", len(s.Sections))
			}
		})
	}
}

func TestNonStringDetailStillFails(t *testing.T) {
	s := Render(ShapeSpeed, decode(t, `{"detail":[{"msg":"field required"}]}`))
	if s.Failure == "" || !strings.Contains(s.Failure, "field required") {
		t.Errorf("expected failure carrying the detail, got %q", s.Failure)
	}
}

func TestLaneMarkingTotal(t *testing.T) {
	payload := decode(t, `{"annotated_video_url":"/out/lane.mp4","filtered_counts":[{"class_name":"solid-white","count":3},{"class_name":"dashed-yellow","count":2}]}`)

	rep, ok := Normalize(ShapeLaneMarking, payload).(LaneMarkingReport)
	if !ok {
		t.Fatal("expected LaneMarkingReport")
	}
	if rep.Total() != 5 {
		t.Errorf("expected total 5, got %v", rep.Total())
	}

	s := Summarize(rep)
	sec, ok := section(s, "Lane Markings")
	if !ok {
		t.Fatal("missing lane markings section")
	}
	want := []string{"Total detected: 5", "solid-white: 3", "dashed-yellow: 2"}
	if strings.Join(sec.Lines, "|") != strings.Join(want, "|") {
		t.Errorf("unexpected lines %v", sec.Lines)
	}
	if s.MediaURL != "/out/lane.mp4" {
		t.Errorf("unexpected media URL %q", s.MediaURL)
	}
}

func TestCollectionPresenceRules(t *testing.T) {
	// detections present, collisions empty, accidents absent
	payload := decode(t, `{"detections":[{"bbox":[1,2,3,4],"confidence":0.8771}],"collisions":[]}`)
	s := Render(ShapeAccident, payload)

	det, ok := section(s, "Vehicle Detections")
	if !ok || len(det.Lines) != 1 {
		t.Fatalf("expected one detection line, got %+v", det)
	}
	if det.Lines[0] != "BBox: [1, 2, 3, 4] | Confidence: 87.7%" {
		t.Errorf("unexpected detection line %q", det.Lines[0])
	}

	col, ok := section(s, "Possible Collisions")
	if !ok || !col.Empty || col.Lines[0] != "No collisions found." {
		t.Errorf("expected explicit none-found section, got %+v", col)
	}

	if _, ok := section(s, "Accident Confirmations"); ok {
		t.Error("absent collection must not produce a section")
	}
}

func TestMalformedSectionFailsClosed(t *testing.T) {
	payload := decode(t, `{"detections":"oops","collisions":[{"track_ids":[3,7]}],"accidents":[{"is_accident":true,"confidence":0.91,"bbox":[5,5,20,20]}]}`)
	s := Render(ShapeAccident, payload)

	det, ok := section(s, "Vehicle Detections")
	if !ok || !det.Empty {
		t.Errorf("malformed collection should render as none found, got %+v", det)
	}
	col, _ := section(s, "Possible Collisions")
	if len(col.Lines) != 1 || col.Lines[0] != "Track IDs: 3 & 7" {
		t.Errorf("unexpected collision lines %v", col.Lines)
	}
	acc, _ := section(s, "Accident Confirmations")
	if len(acc.Lines) != 1 || !strings.HasPrefix(acc.Lines[0], "Status: Accident Detected | Confidence: 91.0%") {
		t.Errorf("unexpected accident lines %v", acc.Lines)
	}
}

func TestPercent(t *testing.T) {
	tests := map[float64]string{
		0:      "0.0%",
		0.5:    "50.0%",
		0.9234: "92.3%",
		1:      "100.0%",
	}
	for in, want := range tests {
		if got := Percent(in); got != want {
			t.Errorf("Percent(%v) = %s, want %s", in, got, want)
		}
	}
}

func TestSpeedSummary(t *testing.T) {
	payload := decode(t, `{
		"summary":{"total_violations":1,"total_vehicles":3},
		"vehicles":[{"vehicle_id":4,"vehicle_type":"car","max_speed":82,"avg_speed":61.5,"total_violations":1,
			"violations":[{"speed":82,"speed_limit":60,"excess_speed":22,"timestamp":"12:00:03"}]}]}`)
	s := Render(ShapeSpeed, payload)

	sum, _ := section(s, "Summary")
	if len(sum.Lines) != 1 || sum.Lines[0] != "1 violations detected from 3 vehicles." {
		t.Errorf("unexpected summary %v", sum.Lines)
	}
	veh, _ := section(s, "Vehicles")
	if veh.Lines[0] != "Vehicle 4 (car)" {
		t.Errorf("unexpected vehicle header %q", veh.Lines[0])
	}
	last := veh.Lines[len(veh.Lines)-1]
	if last != "  - 82 km/h (limit: 60 km/h), excess: 22 km/h at 12:00:03" {
		t.Errorf("unexpected violation line %q", last)
	}
}

func TestRoadSignDetectionsAndMarks(t *testing.T) {
	payload := decode(t, `{"summary":{"total_signs":2,"avg_confidence":0.9},"detections":[{"sign_type":"Stop","time":65,"confidence":0.95},{"sign_type":"Yield","confidence":0.85}]}`)
	rep := Normalize(ShapeRoadSign, payload)
	s := Summarize(rep)

	det, _ := section(s, "Detections")
	if det.Lines[0] != "Stop sign detected at 1:05 (confidence: 95.0%)" {
		t.Errorf("unexpected detection line %q", det.Lines[0])
	}

	marks := Marks(rep)
	if len(marks) != 1 {
		t.Fatalf("expected only timed detections as marks, got %d", len(marks))
	}
	if marks[0].Category != models.MarkRoadSign || marks[0].TimeSeconds != 65 {
		t.Errorf("unexpected mark %+v", marks[0])
	}

	empty := Render(ShapeRoadSign, decode(t, `{"detections":[]}`))
	det, _ = section(empty, "Detections")
	if det.Lines[0] != "No sign detections found." {
		t.Errorf("unexpected empty line %q", det.Lines[0])
	}
}

func TestLaneChangeEvents(t *testing.T) {
	payload := decode(t, `{
		"summary":{"total_detected_lane_changes":1,"lane_count":3},
		"lane_change_events":[{"frame_idx":120,"track_id":7,"lane_idx":2,"direction":"left","timestamp":4.2}],
		"vehicles":[]}`)
	s := Render(ShapeLaneChange, payload)

	sum, _ := section(s, "Summary")
	if sum.Lines[0] != "1 lane change detected." || sum.Lines[1] != "Lane count detected: 3" {
		t.Errorf("unexpected summary %v", sum.Lines)
	}
	ev, _ := section(s, "Lane Change Events")
	if ev.Lines[0] != "At frame 120, vehicle 7 crossed lane 2 (left) at 4.2" {
		t.Errorf("unexpected event line %q", ev.Lines[0])
	}
	veh, _ := section(s, "Vehicles")
	if !veh.Empty {
		t.Error("empty vehicles should render none found")
	}
}

func TestTrafficLightNestedViolations(t *testing.T) {
	payload := decode(t, `{"output_path":"/out/tl.mp4","summary":{"total_frames":900,"total_violations":1,"unique_violators":1,
		"violations":[{"vehicle_id":12,"frame_number":455,"confidence":0.77,"detection_method":"stopline"}]}}`)
	s := Render(ShapeTrafficLight, payload)

	v, ok := section(s, "Violations")
	if !ok || v.Lines[0] != "Vehicle 12 at frame 455 (confidence: 77.0%, method: stopline)" {
		t.Errorf("unexpected violations %+v", v)
	}
	if s.MediaURL != "/out/tl.mp4" {
		t.Errorf("unexpected media %q", s.MediaURL)
	}
}

func TestFraudShapes(t *testing.T) {
	video := Render(ShapeFraudVideo, decode(t, `{"vehicle_1_fraud_probability":0.823,"vehicle_2_fraud_probability":0.1,"most_fraudulent_vehicle":"vehicle_1","detected_accident":true}`))
	sec, _ := section(video, "Fraud Assessment")
	if len(sec.Lines) != 4 || sec.Lines[0] != "Vehicle 1 fraud probability: 82.3%" {
		t.Errorf("unexpected fraud video lines %v", sec.Lines)
	}

	form := Render(ShapeFraudForm, decode(t, `{"vehicle_predictions":[{"vehicle_id":1,"fraud_probability":0.91,"is_fraudulent":true,"confidence":0.8,"avg_speed":61,"total_violations":7}],"most_fraudulent_vehicle":1,"area_type":"urban","speed_limit":50,"num_vehicles":2}`))
	pred, _ := section(form, "Vehicle Predictions")
	if pred.Lines[0] != "Vehicle 1: Fraudulent (fraud probability 91.0%, confidence 80.0%, avg speed 61 km/h, violations 7)" {
		t.Errorf("unexpected prediction line %q", pred.Lines[0])
	}
}

func TestUnknownShapeListsFields(t *testing.T) {
	s := Render("plate-reader", decode(t, `{"plates":["AB123"],"count":1}`))
	if s.Shape != ShapeUnknown || len(s.Sections) != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.Sections[0].Lines[0] != "count: 1" {
		t.Errorf("unexpected first line %q", s.Sections[0].Lines[0])
	}
}

func TestEmptyPayloadRendersNothing(t *testing.T) {
	for _, shape := range DefaultRegistry.Shapes() {
		s := Render(shape, map[string]any{})
		if s.Failure != "" {
			t.Errorf("%s: empty payload is not a failure", shape)
		}
		if len(s.Sections) != 0 {
			t.Errorf("%s: absent collections must be omitted, got %+v", shape, s.Sections)
		}
	}
}
