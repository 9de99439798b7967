package render

import (
	"fmt"
)

// FraudVideoReport is the reply of the video fraud model
type FraudVideoReport struct {
	Vehicle1Probability Num    `json:"vehicle_1_fraud_probability"`
	Vehicle2Probability Num    `json:"vehicle_2_fraud_probability"`
	MostFraudulent      string `json:"most_fraudulent_vehicle,omitempty"`
	DetectedAccident    *bool  `json:"detected_accident,omitempty"`
}

// Shape implements Report
func (FraudVideoReport) Shape() string { return ShapeFraudVideo }

type fraudVideoRenderer struct{}

func (fraudVideoRenderer) Title() string { return "Accident Fraud Detection" }

func (fraudVideoRenderer) Normalize(p map[string]any) Report {
	rep := FraudVideoReport{
		Vehicle1Probability: optNumber(p, "vehicle_1_fraud_probability"),
		Vehicle2Probability: optNumber(p, "vehicle_2_fraud_probability"),
		MostFraudulent:      str(p, "most_fraudulent_vehicle"),
	}
	if b, ok := boolean(p, "detected_accident"); ok {
		rep.DetectedAccident = &b
	}
	return rep
}

func (r fraudVideoRenderer) Summarize(report Report) Summary {
	rep, ok := report.(FraudVideoReport)
	if !ok {
		return Summary{Shape: report.Shape(), Title: r.Title()}
	}

	sec := Section{Title: "Fraud Assessment"}
	if rep.Vehicle1Probability.Set {
		sec.Lines = append(sec.Lines, "Vehicle 1 fraud probability: "+rep.Vehicle1Probability.percent())
	}
	if rep.Vehicle2Probability.Set {
		sec.Lines = append(sec.Lines, "Vehicle 2 fraud probability: "+rep.Vehicle2Probability.percent())
	}
	if rep.MostFraudulent != "" {
		sec.Lines = append(sec.Lines, "Most fraudulent vehicle: "+rep.MostFraudulent)
	}
	if rep.DetectedAccident != nil {
		verdict := "No"
		if *rep.DetectedAccident {
			verdict = "Yes"
		}
		sec.Lines = append(sec.Lines, "Accident detected: "+verdict)
	}

	s := Summary{Shape: ShapeFraudVideo, Title: r.Title()}
	if len(sec.Lines) > 0 {
		s.Sections = append(s.Sections, sec)
	}
	return s
}

// VehiclePrediction is the fraud model's verdict on one vehicle
type VehiclePrediction struct {
	VehicleID        string `json:"vehicle_id"`
	FraudProbability Num    `json:"fraud_probability"`
	IsFraudulent     bool   `json:"is_fraudulent"`
	Confidence       Num    `json:"confidence"`
	AvgSpeed         Num    `json:"avg_speed"`
	TotalViolations  Num    `json:"total_violations"`
}

// FraudFormReport is the reply to a manually entered fraud form
type FraudFormReport struct {
	Predictions    List[VehiclePrediction] `json:"vehicle_predictions"`
	MostFraudulent string                  `json:"most_fraudulent_vehicle,omitempty"`
	AreaType       string                  `json:"area_type,omitempty"`
	SpeedLimit     Num                     `json:"speed_limit"`
	NumVehicles    Num                     `json:"num_vehicles"`
}

// Shape implements Report
func (FraudFormReport) Shape() string { return ShapeFraudForm }

type fraudFormRenderer struct{}

func (fraudFormRenderer) Title() string { return "Accident Fraud Prediction" }

func (fraudFormRenderer) Normalize(p map[string]any) Report {
	return FraudFormReport{
		Predictions: collect(p, "vehicle_predictions", func(m map[string]any) VehiclePrediction {
			fraudulent, _ := boolean(m, "is_fraudulent")
			return VehiclePrediction{
				VehicleID:        str(m, "vehicle_id"),
				FraudProbability: optNumber(m, "fraud_probability"),
				IsFraudulent:     fraudulent,
				Confidence:       optNumber(m, "confidence"),
				AvgSpeed:         optNumber(m, "avg_speed"),
				TotalViolations:  optNumber(m, "total_violations"),
			}
		}),
		MostFraudulent: str(p, "most_fraudulent_vehicle"),
		AreaType:       str(p, "area_type"),
		SpeedLimit:     optNumber(p, "speed_limit"),
		NumVehicles:    optNumber(p, "num_vehicles"),
	}
}

func (r fraudFormRenderer) Summarize(report Report) Summary {
	rep, ok := report.(FraudFormReport)
	if !ok {
		return Summary{Shape: report.Shape(), Title: r.Title()}
	}

	s := Summary{Shape: ShapeFraudForm, Title: r.Title()}

	overview := Section{Title: "Overview"}
	if rep.MostFraudulent != "" {
		overview.Lines = append(overview.Lines, "Most fraudulent vehicle: "+rep.MostFraudulent)
	}
	if rep.AreaType != "" {
		overview.Lines = append(overview.Lines, "Area type: "+rep.AreaType)
	}
	if rep.SpeedLimit.Set {
		overview.Lines = append(overview.Lines, fmt.Sprintf("Speed limit: %s km/h", rep.SpeedLimit))
	}
	if rep.NumVehicles.Set {
		overview.Lines = append(overview.Lines, "Vehicles analysed: "+rep.NumVehicles.String())
	}
	if len(overview.Lines) > 0 {
		s.Sections = append(s.Sections, overview)
	}

	if sec, ok := listSection("Vehicle Predictions", rep.Predictions, "No vehicle predictions found.", func(v VehiclePrediction) []string {
		verdict := "Not fraudulent"
		if v.IsFraudulent {
			verdict = "Fraudulent"
		}
		return []string{fmt.Sprintf("Vehicle %s: %s (fraud probability %s, confidence %s, avg speed %s km/h, violations %s)",
			v.VehicleID, verdict, v.FraudProbability.percent(), v.Confidence.percent(), v.AvgSpeed, v.TotalViolations)}
	}); ok {
		s.Sections = append(s.Sections, sec)
	}

	return s
}

func init() {
	Register(ShapeFraudVideo, fraudVideoRenderer{})
	Register(ShapeFraudForm, fraudFormRenderer{})
}
