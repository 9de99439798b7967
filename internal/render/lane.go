package render

import (
	"fmt"
	"strings"
)

// MarkingCount is one lane-marking class and how often it was seen
type MarkingCount struct {
	ClassName string  `json:"class_name"`
	Count     float64 `json:"count"`
}

// LaneMarkingReport is the reply of the road-marking detector
type LaneMarkingReport struct {
	AnnotatedVideoURL string             `json:"annotated_video_url,omitempty"`
	Counts            List[MarkingCount] `json:"filtered_counts"`
}

// Shape implements Report
func (LaneMarkingReport) Shape() string { return ShapeLaneMarking }

// Total is the number of markings across all classes
func (r LaneMarkingReport) Total() float64 {
	var total float64
	for _, c := range r.Counts.Items {
		total += c.Count
	}
	return total
}

type laneMarkingRenderer struct{}

func (laneMarkingRenderer) Title() string { return "Lane Marking Detection" }

func (laneMarkingRenderer) Normalize(p map[string]any) Report {
	return LaneMarkingReport{
		AnnotatedVideoURL: str(p, "annotated_video_url"),
		Counts: collect(p, "filtered_counts", func(m map[string]any) MarkingCount {
			n, _ := number(m["count"])
			return MarkingCount{ClassName: str(m, "class_name"), Count: n}
		}),
	}
}

func (r laneMarkingRenderer) Summarize(report Report) Summary {
	rep, ok := report.(LaneMarkingReport)
	if !ok {
		return Summary{Shape: report.Shape(), Title: r.Title()}
	}

	s := Summary{Shape: ShapeLaneMarking, Title: r.Title(), MediaURL: rep.AnnotatedVideoURL}
	if sec, ok := listSection("Lane Markings", rep.Counts, "No lane markings found.", func(c MarkingCount) []string {
		return []string{fmt.Sprintf("%s: %s", c.ClassName, text(c.Count))}
	}); ok {
		if !sec.Empty {
			sec.Lines = append([]string{"Total detected: " + text(rep.Total())}, sec.Lines...)
		}
		s.Sections = append(s.Sections, sec)
	}
	return s
}

// LaneChangeSummary holds the headline counts of a lane-change run
type LaneChangeSummary struct {
	TotalLaneChanges       Num    `json:"total_detected_lane_changes"`
	TotalTrackedVehicles   Num    `json:"total_tracked_vehicles"`
	VehiclesWithLaneChange Num    `json:"vehicles_with_lane_changes"`
	LaneCount              Num    `json:"lane_count"`
	ProcessedAt            string `json:"processed_at,omitempty"`
}

// LaneChange is one move between lanes by a vehicle
type LaneChange struct {
	FromLane    string `json:"from_lane"`
	ToLane      string `json:"to_lane"`
	Timestamp   string `json:"timestamp,omitempty"`
	PlateNumber string `json:"plate_number,omitempty"`
}

// LaneChangeVehicle is one tracked vehicle and its lane changes
type LaneChangeVehicle struct {
	VehicleID        string           `json:"vehicle_id"`
	Plates           []string         `json:"plates,omitempty"`
	TotalLaneChanges Num              `json:"total_lane_changes"`
	LaneChanges      List[LaneChange] `json:"lane_changes"`
}

// LaneChangeEvent is a frame-level lane crossing
type LaneChangeEvent struct {
	FrameIndex string `json:"frame_idx"`
	TrackID    string `json:"track_id"`
	LaneIndex  string `json:"lane_idx"`
	Direction  string `json:"direction"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// LaneChangeReport is the reply of the lane-path evaluator
type LaneChangeReport struct {
	AnnotatedVideoURL string                  `json:"annotated_video_url,omitempty"`
	Summary           *LaneChangeSummary      `json:"summary,omitempty"`
	Vehicles          List[LaneChangeVehicle] `json:"vehicles"`
	Events            List[LaneChangeEvent]   `json:"lane_change_events"`
}

// Shape implements Report
func (LaneChangeReport) Shape() string { return ShapeLaneChange }

type laneChangeRenderer struct{}

func (laneChangeRenderer) Title() string { return "Lane Path Violation" }

func (laneChangeRenderer) Normalize(p map[string]any) Report {
	rep := LaneChangeReport{
		AnnotatedVideoURL: str(p, "annotated_video_url"),
		Vehicles: collect(p, "vehicles", func(m map[string]any) LaneChangeVehicle {
			return LaneChangeVehicle{
				VehicleID:        str(m, "vehicle_id"),
				Plates:           strs(m["plates"]),
				TotalLaneChanges: optNumber(m, "total_lane_changes"),
				LaneChanges: collect(m, "lane_changes", func(c map[string]any) LaneChange {
					return LaneChange{
						FromLane:    str(c, "from_lane"),
						ToLane:      str(c, "to_lane"),
						Timestamp:   str(c, "timestamp"),
						PlateNumber: str(c, "plate_number"),
					}
				}),
			}
		}),
		Events: collect(p, "lane_change_events", func(m map[string]any) LaneChangeEvent {
			return LaneChangeEvent{
				FrameIndex: str(m, "frame_idx"),
				TrackID:    str(m, "track_id"),
				LaneIndex:  str(m, "lane_idx"),
				Direction:  str(m, "direction"),
				Timestamp:  str(m, "timestamp"),
			}
		}),
	}
	if sum, ok := object(p, "summary"); ok {
		rep.Summary = &LaneChangeSummary{
			TotalLaneChanges:       optNumber(sum, "total_detected_lane_changes"),
			TotalTrackedVehicles:   optNumber(sum, "total_tracked_vehicles"),
			VehiclesWithLaneChange: optNumber(sum, "vehicles_with_lane_changes"),
			LaneCount:              optNumber(sum, "lane_count"),
			ProcessedAt:            str(sum, "processed_at"),
		}
	}
	return rep
}

func (r laneChangeRenderer) Summarize(report Report) Summary {
	rep, ok := report.(LaneChangeReport)
	if !ok {
		return Summary{Shape: report.Shape(), Title: r.Title()}
	}

	s := Summary{Shape: ShapeLaneChange, Title: r.Title(), MediaURL: rep.AnnotatedVideoURL}

	if sum := rep.Summary; sum != nil {
		sec := Section{Title: "Summary"}
		if sum.TotalLaneChanges.Set {
			sec.Lines = append(sec.Lines, fmt.Sprintf("%s %s detected.", sum.TotalLaneChanges,
				plural(sum.TotalLaneChanges.Value, "lane change", "lane changes")))
		}
		if sum.TotalTrackedVehicles.Set {
			sec.Lines = append(sec.Lines, fmt.Sprintf("Vehicles tracked: %s", sum.TotalTrackedVehicles))
		}
		if sum.VehiclesWithLaneChange.Set {
			sec.Lines = append(sec.Lines, fmt.Sprintf("Vehicles with lane changes: %s", sum.VehiclesWithLaneChange))
		}
		if sum.LaneCount.Set {
			sec.Lines = append(sec.Lines, fmt.Sprintf("Lane count detected: %s", sum.LaneCount))
		}
		if sum.ProcessedAt != "" {
			sec.Lines = append(sec.Lines, "Processed at: "+sum.ProcessedAt)
		}
		if len(sec.Lines) == 0 {
			sec.Lines = []string{"No summary available."}
			sec.Empty = true
		}
		s.Sections = append(s.Sections, sec)
	}

	if sec, ok := listSection("Vehicles", rep.Vehicles, "No vehicles with lane changes detected.", func(v LaneChangeVehicle) []string {
		lines := []string{fmt.Sprintf("Vehicle %s%s: %s lane changes", v.VehicleID, plateSuffix(v.Plates), v.TotalLaneChanges)}
		for _, c := range v.LaneChanges.Items {
			line := fmt.Sprintf("  Lane %s -> %s", c.FromLane, c.ToLane)
			if c.Timestamp != "" {
				line += " at " + c.Timestamp
			}
			if c.PlateNumber != "" {
				line += fmt.Sprintf(" (Plate: %s)", c.PlateNumber)
			}
			lines = append(lines, line)
		}
		return lines
	}); ok {
		s.Sections = append(s.Sections, sec)
	}

	if sec, ok := listSection("Lane Change Events", rep.Events, "No lane changes detected.", func(e LaneChangeEvent) []string {
		line := fmt.Sprintf("At frame %s, vehicle %s crossed lane %s (%s)", e.FrameIndex, e.TrackID, e.LaneIndex, e.Direction)
		if e.Timestamp != "" {
			line += " at " + e.Timestamp
		}
		return []string{line}
	}); ok {
		s.Sections = append(s.Sections, sec)
	}

	return s
}

func plateSuffix(plates []string) string {
	if len(plates) == 0 {
		return ""
	}
	return fmt.Sprintf(" (Plate: %s)", strings.Join(plates, ", "))
}

func init() {
	Register(ShapeLaneMarking, laneMarkingRenderer{})
	Register(ShapeLaneChange, laneChangeRenderer{})
}
