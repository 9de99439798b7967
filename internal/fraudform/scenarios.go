package fraudform

import "sort"

// Scenarios are sample inputs for demonstrating the fraud model
var Scenarios = map[string]Payload{
	"two_vehicle_fraudulent": {
		Vehicles: []VehiclePayload{
			{
				Speeds:             []float64{45, 65, 70, 55, 75, 60, 80, 45, 85, 50},
				SpeedViolations:    []int{0, 1, 1, 1, 1, 1, 1, 0, 1, 0},
				RedLightViolations: []int{0, 0, 1, 0, 0, 1, 0, 0, 0, 0},
				LaneViolations:     []int{0, 1, 0, 1, 0, 1, 1, 0, 1, 0},
			},
			{
				Speeds:             []float64{48, 52, 50, 47, 53, 49, 51, 48, 50, 52},
				SpeedViolations:    []int{0, 1, 0, 0, 1, 0, 1, 0, 0, 1},
				RedLightViolations: []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
				LaneViolations:     []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
			},
		},
		AreaType:   "urban",
		SpeedLimit: 50,
	},
	"three_vehicle_mixed": {
		Vehicles: []VehiclePayload{
			{
				Speeds:             []float64{40, 75, 80, 35, 90, 85, 45, 95, 40, 88},
				SpeedViolations:    []int{0, 1, 1, 0, 1, 1, 0, 1, 0, 1},
				RedLightViolations: []int{0, 1, 0, 0, 1, 0, 0, 1, 0, 0},
				LaneViolations:     []int{0, 1, 1, 1, 1, 0, 1, 1, 0, 1},
			},
			{
				Speeds:             []float64{55, 58, 62, 54, 59, 61, 56, 60, 57, 58},
				SpeedViolations:    []int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
				RedLightViolations: []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
				LaneViolations:     []int{0, 0, 1, 0, 0, 0, 0, 0, 0, 0},
			},
			{
				Speeds:             []float64{48, 52, 50, 47, 53, 49, 51, 48, 50, 52},
				SpeedViolations:    []int{0, 1, 0, 0, 1, 0, 1, 0, 0, 1},
				RedLightViolations: []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
				LaneViolations:     []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
			},
		},
		AreaType:   "urban",
		SpeedLimit: 50,
	},
	"highway_accident": {
		Vehicles: []VehiclePayload{
			{
				Speeds:             []float64{95, 98, 102, 96, 101, 99, 97, 103, 98, 100},
				SpeedViolations:    []int{0, 0, 1, 0, 1, 0, 0, 1, 0, 0},
				RedLightViolations: []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
				LaneViolations:     []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
			},
			{
				Speeds:             []float64{100, 125, 130, 85, 140, 120, 110, 135, 90, 128},
				SpeedViolations:    []int{0, 1, 1, 0, 1, 1, 1, 1, 0, 1},
				RedLightViolations: []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
				LaneViolations:     []int{0, 1, 1, 1, 0, 1, 0, 1, 1, 0},
			},
		},
		AreaType:   "highway",
		SpeedLimit: 100,
	},
}

// ScenarioNames returns the sample names in sorted order
func ScenarioNames() []string {
	names := make([]string, 0, len(Scenarios))
	for name := range Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
