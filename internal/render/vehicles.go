package render

import (
	"fmt"
)

// UTurnEvent is one detected U-turn
type UTurnEvent struct {
	Angle     Num    `json:"angle"`
	Timestamp string `json:"timestamp,omitempty"`
	Plate     string `json:"plate,omitempty"`
}

// UTurnVehicle is a tracked vehicle and its U-turns
type UTurnVehicle struct {
	VehicleID   string           `json:"vehicle_id"`
	Plates      []string         `json:"plates,omitempty"`
	TotalUTurns Num              `json:"total_uturns"`
	Events      List[UTurnEvent] `json:"uturn_events"`
}

// UTurnSummary holds the headline counts of a U-turn run
type UTurnSummary struct {
	TotalUTurns          Num `json:"total_detected_uturns"`
	TotalTrackedVehicles Num `json:"total_tracked_vehicles"`
	VehiclesWithUTurns   Num `json:"vehicles_with_uturns"`
}

// UTurnReport is the reply of the U-turn detector
type UTurnReport struct {
	Summary  *UTurnSummary      `json:"summary,omitempty"`
	Vehicles List[UTurnVehicle] `json:"vehicles"`
}

// Shape implements Report
func (UTurnReport) Shape() string { return ShapeUTurn }

type uturnRenderer struct{}

func (uturnRenderer) Title() string { return "U-Turn Detection" }

func (uturnRenderer) Normalize(p map[string]any) Report {
	rep := UTurnReport{
		Vehicles: collect(p, "vehicles", func(m map[string]any) UTurnVehicle {
			return UTurnVehicle{
				VehicleID:   str(m, "vehicle_id"),
				Plates:      strs(m["plates"]),
				TotalUTurns: optNumber(m, "total_uturns"),
				Events: collect(m, "uturn_events", func(e map[string]any) UTurnEvent {
					return UTurnEvent{Angle: optNumber(e, "angle"), Timestamp: str(e, "timestamp"), Plate: str(e, "plate")}
				}),
			}
		}),
	}
	if sum, ok := object(p, "summary"); ok {
		rep.Summary = &UTurnSummary{
			TotalUTurns:          optNumber(sum, "total_detected_uturns"),
			TotalTrackedVehicles: optNumber(sum, "total_tracked_vehicles"),
			VehiclesWithUTurns:   optNumber(sum, "vehicles_with_uturns"),
		}
	}
	return rep
}

func (r uturnRenderer) Summarize(report Report) Summary {
	rep, ok := report.(UTurnReport)
	if !ok {
		return Summary{Shape: report.Shape(), Title: r.Title()}
	}

	s := Summary{Shape: ShapeUTurn, Title: r.Title()}
	if sum := rep.Summary; sum != nil {
		s.Sections = append(s.Sections, Section{Title: "Summary", Lines: []string{
			fmt.Sprintf("%s U-turn detected from %s vehicles tracked.", sum.TotalUTurns, sum.TotalTrackedVehicles),
			fmt.Sprintf("%s vehicles made a U-turn.", sum.VehiclesWithUTurns),
		}})
	}

	if sec, ok := listSection("Vehicles", rep.Vehicles, "No vehicles with U-turns detected.", func(v UTurnVehicle) []string {
		lines := []string{fmt.Sprintf("Vehicle %s%s: %s U-turns", v.VehicleID, plateSuffix(v.Plates), v.TotalUTurns)}
		for _, e := range v.Events.Items {
			line := "  U-turn"
			if e.Angle.Set {
				line += fmt.Sprintf(" (%s°)", e.Angle)
			}
			if e.Timestamp != "" {
				line += " at " + e.Timestamp
			}
			if e.Plate != "" {
				line += fmt.Sprintf(" (Plate: %s)", e.Plate)
			}
			lines = append(lines, line)
		}
		return lines
	}); ok {
		s.Sections = append(s.Sections, sec)
	}
	return s
}

// SpeedViolation is one reading above the limit
type SpeedViolation struct {
	Speed       Num    `json:"speed"`
	SpeedLimit  Num    `json:"speed_limit"`
	ExcessSpeed Num    `json:"excess_speed"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// SpeedVehicle is a tracked vehicle and its speed readings
type SpeedVehicle struct {
	VehicleID       string               `json:"vehicle_id"`
	VehicleType     string               `json:"vehicle_type,omitempty"`
	MaxSpeed        Num                  `json:"max_speed"`
	AvgSpeed        Num                  `json:"avg_speed"`
	TotalViolations Num                  `json:"total_violations"`
	Violations      List[SpeedViolation] `json:"violations"`
}

// SpeedSummary holds the headline counts of a speed run
type SpeedSummary struct {
	TotalViolations Num `json:"total_violations"`
	TotalVehicles   Num `json:"total_vehicles"`
}

// SpeedReport is the reply of the speed estimator
type SpeedReport struct {
	Summary  *SpeedSummary      `json:"summary,omitempty"`
	Vehicles List[SpeedVehicle] `json:"vehicles"`
}

// Shape implements Report
func (SpeedReport) Shape() string { return ShapeSpeed }

type speedRenderer struct{}

func (speedRenderer) Title() string { return "Speed Violation Detection" }

func (speedRenderer) Normalize(p map[string]any) Report {
	rep := SpeedReport{
		Vehicles: collect(p, "vehicles", func(m map[string]any) SpeedVehicle {
			return SpeedVehicle{
				VehicleID:       str(m, "vehicle_id"),
				VehicleType:     str(m, "vehicle_type"),
				MaxSpeed:        optNumber(m, "max_speed"),
				AvgSpeed:        optNumber(m, "avg_speed"),
				TotalViolations: optNumber(m, "total_violations"),
				Violations: collect(m, "violations", func(v map[string]any) SpeedViolation {
					return SpeedViolation{
						Speed:       optNumber(v, "speed"),
						SpeedLimit:  optNumber(v, "speed_limit"),
						ExcessSpeed: optNumber(v, "excess_speed"),
						Timestamp:   str(v, "timestamp"),
					}
				}),
			}
		}),
	}
	if sum, ok := object(p, "summary"); ok {
		rep.Summary = &SpeedSummary{
			TotalViolations: optNumber(sum, "total_violations"),
			TotalVehicles:   optNumber(sum, "total_vehicles"),
		}
	}
	return rep
}

func (r speedRenderer) Summarize(report Report) Summary {
	rep, ok := report.(SpeedReport)
	if !ok {
		return Summary{Shape: report.Shape(), Title: r.Title()}
	}

	s := Summary{Shape: ShapeSpeed, Title: r.Title()}
	if sum := rep.Summary; sum != nil {
		s.Sections = append(s.Sections, Section{Title: "Summary", Lines: []string{
			fmt.Sprintf("%s violations detected from %s vehicles.", sum.TotalViolations, sum.TotalVehicles),
		}})
	}

	if sec, ok := listSection("Vehicles", rep.Vehicles, "No vehicles found.", func(v SpeedVehicle) []string {
		head := "Vehicle " + v.VehicleID
		if v.VehicleType != "" {
			head += fmt.Sprintf(" (%s)", v.VehicleType)
		}
		lines := []string{
			head,
			fmt.Sprintf("  Max Speed: %s km/h", v.MaxSpeed),
			fmt.Sprintf("  Avg Speed: %s km/h", v.AvgSpeed),
			fmt.Sprintf("  Total Violations: %s", v.TotalViolations),
		}
		for _, viol := range v.Violations.Items {
			line := fmt.Sprintf("  - %s km/h (limit: %s km/h), excess: %s km/h", viol.Speed, viol.SpeedLimit, viol.ExcessSpeed)
			if viol.Timestamp != "" {
				line += " at " + viol.Timestamp
			}
			lines = append(lines, line)
		}
		return lines
	}); ok {
		s.Sections = append(s.Sections, sec)
	}
	return s
}

func init() {
	Register(ShapeUTurn, uturnRenderer{})
	Register(ShapeSpeed, speedRenderer{})
}
