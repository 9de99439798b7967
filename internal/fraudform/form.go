// Package fraudform holds the manual data-entry path for accident fraud
// analysis: per-vehicle readings typed as comma-separated text.
package fraudform

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ReadingsPerField is how many values each vehicle field must hold
const ReadingsPerField = 10

// Field names one per-vehicle input
type Field string

const (
	FieldSpeeds             Field = "speeds"
	FieldSpeedViolations    Field = "speed_violations"
	FieldRedLightViolations Field = "red_light_violations"
	FieldLaneViolations     Field = "lane_violations"
)

// Fields lists the vehicle fields in form order
var Fields = []Field{FieldSpeeds, FieldSpeedViolations, FieldRedLightViolations, FieldLaneViolations}

// AreaTypes are the road environments the fraud model knows
var AreaTypes = []string{"urban", "highway", "residential", "expressway"}

var (
	ErrUnknownField    = errors.New("unknown vehicle field")
	ErrNoSuchVehicle   = errors.New("vehicle index out of range")
	ErrUnknownScenario = errors.New("unknown sample scenario")
	ErrInvalidForm     = errors.New("form is not valid")
)

// ParseField accepts the JSON name of a vehicle field
func ParseField(s string) (Field, error) {
	for _, f := range Fields {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
}

// FieldKey addresses one field of one vehicle
type FieldKey struct {
	Vehicle int
	Field   Field
}

func (k FieldKey) String() string {
	return fmt.Sprintf("vehicles[%d].%s", k.Vehicle, k.Field)
}

// VehicleInput is the raw text of one vehicle's fields
type VehicleInput struct {
	Speeds             string `json:"speeds"`
	SpeedViolations    string `json:"speed_violations"`
	RedLightViolations string `json:"red_light_violations"`
	LaneViolations     string `json:"lane_violations"`
}

func (v *VehicleInput) get(f Field) string {
	switch f {
	case FieldSpeeds:
		return v.Speeds
	case FieldSpeedViolations:
		return v.SpeedViolations
	case FieldRedLightViolations:
		return v.RedLightViolations
	case FieldLaneViolations:
		return v.LaneViolations
	}
	return ""
}

func (v *VehicleInput) set(f Field, raw string) {
	switch f {
	case FieldSpeeds:
		v.Speeds = raw
	case FieldSpeedViolations:
		v.SpeedViolations = raw
	case FieldRedLightViolations:
		v.RedLightViolations = raw
	case FieldLaneViolations:
		v.LaneViolations = raw
	}
}

// VehiclePayload is one vehicle as the fraud model receives it
type VehiclePayload struct {
	Speeds             []float64 `json:"speeds"`
	SpeedViolations    []int     `json:"speed_violations"`
	RedLightViolations []int     `json:"red_light_violations"`
	LaneViolations     []int     `json:"lane_violations"`
}

// Payload is the JSON body posted to the fraud model
type Payload struct {
	Vehicles   []VehiclePayload `json:"vehicles"`
	AreaType   string           `json:"area_type"`
	SpeedLimit float64          `json:"speed_limit"`
}

// FieldError is one outstanding input problem
type FieldError struct {
	Vehicle int    `json:"vehicle"`
	Field   Field  `json:"field"`
	Message string `json:"message"`
}

// State is a serialisable view of the form
type State struct {
	Vehicles   []VehicleInput `json:"vehicles"`
	AreaType   string         `json:"area_type"`
	SpeedLimit float64        `json:"speed_limit"`
	Errors     []FieldError   `json:"errors"`
	Valid      bool           `json:"valid"`
}

// Form is safe for concurrent use
type Form struct {
	mu         sync.RWMutex
	vehicles   []VehicleInput
	areaType   string
	speedLimit float64
	errors     map[FieldKey]string
}

// New returns a form with one blank vehicle, urban area and a 50 limit
func New() *Form {
	return &Form{
		vehicles:   []VehicleInput{{}},
		areaType:   "urban",
		speedLimit: 50,
		errors:     make(map[FieldKey]string),
	}
}

// SetField stores raw text for a vehicle field and validates it at once.
// The field's error is set on failure and cleared on success.
func (f *Form) SetField(vehicle int, field Field, raw string) error {
	if _, err := ParseField(string(field)); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if vehicle < 0 || vehicle >= len(f.vehicles) {
		return fmt.Errorf("%w: %d", ErrNoSuchVehicle, vehicle)
	}
	f.vehicles[vehicle].set(field, raw)

	key := FieldKey{Vehicle: vehicle, Field: field}
	if msg := checkField(field, raw); msg != "" {
		f.errors[key] = msg
	} else {
		delete(f.errors, key)
	}
	return nil
}

// SetAreaType stores the road environment
func (f *Form) SetAreaType(area string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.areaType = strings.TrimSpace(area)
}

// SetSpeedLimit stores the posted limit
func (f *Form) SetSpeedLimit(limit float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speedLimit = limit
}

// AddVehicle appends a blank vehicle and returns its index
func (f *Form) AddVehicle() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vehicles = append(f.vehicles, VehicleInput{})
	return len(f.vehicles) - 1
}

// RemoveVehicle deletes a vehicle; errors of later vehicles shift down
func (f *Form) RemoveVehicle(vehicle int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if vehicle < 0 || vehicle >= len(f.vehicles) {
		return fmt.Errorf("%w: %d", ErrNoSuchVehicle, vehicle)
	}
	f.vehicles = append(f.vehicles[:vehicle], f.vehicles[vehicle+1:]...)

	rekeyed := make(map[FieldKey]string, len(f.errors))
	for key, msg := range f.errors {
		switch {
		case key.Vehicle == vehicle:
			continue
		case key.Vehicle > vehicle:
			key.Vehicle--
		}
		rekeyed[key] = msg
	}
	f.errors = rekeyed
	return nil
}

// Replace swaps in a whole set of vehicles and revalidates every field
func (f *Form) Replace(vehicles []VehicleInput, areaType string, speedLimit float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.vehicles = append([]VehicleInput(nil), vehicles...)
	f.areaType = strings.TrimSpace(areaType)
	f.speedLimit = speedLimit
	f.errors = make(map[FieldKey]string)
	for i := range f.vehicles {
		for _, field := range Fields {
			raw := f.vehicles[i].get(field)
			if msg := checkField(field, raw); msg != "" {
				f.errors[FieldKey{Vehicle: i, Field: field}] = msg
			}
		}
	}
}

// LoadScenario fills the form with one of the sample scenarios
func (f *Form) LoadScenario(name string) error {
	sc, ok := Scenarios[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownScenario, name)
	}

	vehicles := make([]VehicleInput, len(sc.Vehicles))
	for i, v := range sc.Vehicles {
		vehicles[i] = VehicleInput{
			Speeds:             joinFloats(v.Speeds),
			SpeedViolations:    joinInts(v.SpeedViolations),
			RedLightViolations: joinInts(v.RedLightViolations),
			LaneViolations:     joinInts(v.LaneViolations),
		}
	}
	f.Replace(vehicles, sc.AreaType, sc.SpeedLimit)
	return nil
}

// Errors returns the outstanding field errors keyed by vehicle and field
func (f *Form) Errors() map[FieldKey]string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[FieldKey]string, len(f.errors))
	for k, v := range f.errors {
		out[k] = v
	}
	return out
}

// IsValid reports whether the form may be submitted
func (f *Form) IsValid() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.validLocked()
}

func (f *Form) validLocked() bool {
	if len(f.vehicles) == 0 || len(f.errors) > 0 {
		return false
	}
	if !knownArea(f.areaType) || !finite(f.speedLimit) || !(f.speedLimit > 0) {
		return false
	}
	for i := range f.vehicles {
		for _, field := range Fields {
			if checkField(field, f.vehicles[i].get(field)) != "" {
				return false
			}
		}
	}
	return true
}

// State returns a snapshot suitable for JSON
func (f *Form) State() State {
	f.mu.RLock()
	defer f.mu.RUnlock()

	errs := make([]FieldError, 0, len(f.errors))
	for k, msg := range f.errors {
		errs = append(errs, FieldError{Vehicle: k.Vehicle, Field: k.Field, Message: msg})
	}
	sort.Slice(errs, func(i, j int) bool {
		if errs[i].Vehicle != errs[j].Vehicle {
			return errs[i].Vehicle < errs[j].Vehicle
		}
		return fieldOrder(errs[i].Field) < fieldOrder(errs[j].Field)
	})

	return State{
		Vehicles:   append([]VehicleInput(nil), f.vehicles...),
		AreaType:   f.areaType,
		SpeedLimit: f.speedLimit,
		Errors:     errs,
		Valid:      f.validLocked(),
	}
}

// Payload converts the form into the request body. It fails with
// ErrInvalidForm while the form is not valid.
func (f *Form) Payload() (Payload, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.validLocked() {
		return Payload{}, ErrInvalidForm
	}

	p := Payload{
		Vehicles:   make([]VehiclePayload, len(f.vehicles)),
		AreaType:   f.areaType,
		SpeedLimit: f.speedLimit,
	}
	for i, v := range f.vehicles {
		speeds, _ := parseFloats(v.Speeds)
		sv, _ := parseFlags(v.SpeedViolations)
		rl, _ := parseFlags(v.RedLightViolations)
		lv, _ := parseFlags(v.LaneViolations)
		p.Vehicles[i] = VehiclePayload{Speeds: speeds, SpeedViolations: sv, RedLightViolations: rl, LaneViolations: lv}
	}
	return p, nil
}

// checkField returns an empty string when raw is acceptable for field
func checkField(field Field, raw string) string {
	if field == FieldSpeeds {
		if _, err := parseFloats(raw); err != nil {
			return err.Error()
		}
		return ""
	}
	if _, err := parseFlags(raw); err != nil {
		return err.Error()
	}
	return ""
}

func splitValues(raw string) ([]string, error) {
	parts := strings.Split(raw, ",")
	if strings.TrimSpace(raw) == "" || len(parts) != ReadingsPerField {
		return nil, fmt.Errorf("Must contain exactly %d comma-separated values", ReadingsPerField)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, nil
}

func parseFloats(raw string) ([]float64, error) {
	parts, err := splitValues(raw)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || !finite(v) || v < 0 {
			return nil, errors.New("Speeds must be non-negative numbers")
		}
		out[i] = v
	}
	return out, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func parseFlags(raw string) ([]int, error) {
	parts, err := splitValues(raw)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(parts))
	for i, p := range parts {
		switch p {
		case "0":
			out[i] = 0
		case "1":
			out[i] = 1
		default:
			return nil, errors.New("Violations must be 0 or 1")
		}
	}
	return out, nil
}

func knownArea(area string) bool {
	for _, a := range AreaTypes {
		if a == area {
			return true
		}
	}
	return false
}

func fieldOrder(f Field) int {
	for i, field := range Fields {
		if field == f {
			return i
		}
	}
	return len(Fields)
}

func joinFloats(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
