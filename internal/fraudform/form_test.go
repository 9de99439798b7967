package fraudform

import (
	"errors"
	"math"
	"testing"
)

const (
	validSpeeds = "45,65,70,55,75,60,80,45,85,50"
	validFlags  = "0,1,1,1,1,1,1,0,1,0"
	zeroFlags   = "0,0,0,0,0,0,0,0,0,0"
)

func fillVehicle(t *testing.T, f *Form, vehicle int) {
	t.Helper()
	for field, raw := range map[Field]string{
		FieldSpeeds:             validSpeeds,
		FieldSpeedViolations:    validFlags,
		FieldRedLightViolations: zeroFlags,
		FieldLaneViolations:     validFlags,
	} {
		if err := f.SetField(vehicle, field, raw); err != nil {
			t.Fatalf("SetField(%d, %s) failed: %v", vehicle, field, err)
		}
	}
}

func TestSingleUrbanVehicleIsValid(t *testing.T) {
	f := New()
	fillVehicle(t, f, 0)
	f.SetAreaType("urban")
	f.SetSpeedLimit(50)

	if !f.IsValid() {
		t.Fatalf("expected form to be valid, errors: %v", f.Errors())
	}

	p, err := f.Payload()
	if err != nil {
		t.Fatalf("Payload failed: %v", err)
	}
	if len(p.Vehicles) != 1 || len(p.Vehicles[0].Speeds) != 10 || p.Vehicles[0].Speeds[8] != 85 {
		t.Errorf("unexpected payload %+v", p)
	}
	if p.AreaType != "urban" || p.SpeedLimit != 50 {
		t.Errorf("unexpected area/limit %s %v", p.AreaType, p.SpeedLimit)
	}
}

func TestFieldErrorSetsAndClears(t *testing.T) {
	f := New()
	fillVehicle(t, f, 0)
	key := FieldKey{Vehicle: 0, Field: FieldSpeeds}

	f.SetField(0, FieldSpeeds, "45,65,70")
	if _, ok := f.Errors()[key]; !ok {
		t.Fatal("expected an error for a short speeds list")
	}
	if f.IsValid() {
		t.Error("form with an outstanding error must not be valid")
	}

	f.SetField(0, FieldLaneViolations, validFlags)
	if _, ok := f.Errors()[key]; !ok {
		t.Error("error must stay until the field itself is corrected")
	}

	f.SetField(0, FieldSpeeds, validSpeeds)
	if _, ok := f.Errors()[key]; ok {
		t.Error("error should clear once corrected")
	}
	if !f.IsValid() {
		t.Error("form should be valid again")
	}
}

func TestFieldValidationRules(t *testing.T) {
	tests := []struct {
		name  string
		field Field
		raw   string
		ok    bool
	}{
		{"eleven speeds", FieldSpeeds, validSpeeds + ",1", false},
		{"negative speed", FieldSpeeds, "-1,65,70,55,75,60,80,45,85,50", false},
		{"fractional speeds", FieldSpeeds, "45.5,65,70,55,75,60,80,45,85,50", true},
		{"spaces around values", FieldSpeeds, "45, 65, 70, 55, 75, 60, 80, 45, 85, 50", true},
		{"non numeric speed", FieldSpeeds, "fast,65,70,55,75,60,80,45,85,50", false},
		{"NaN speed", FieldSpeeds, "NaN,1,1,1,1,1,1,1,1,1", false},
		{"infinite speed", FieldSpeeds, "Inf,1,1,1,1,1,1,1,1,1", false},
		{"negative infinite speed", FieldSpeeds, "1,1,1,1,1,1,1,1,1,-Inf", false},
		{"flag of two", FieldRedLightViolations, "0,2,0,0,0,0,0,0,0,0", false},
		{"empty flags", FieldLaneViolations, "", false},
		{"trailing comma", FieldSpeedViolations, "0,1,1,1,1,1,1,0,1,", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New()
			f.SetField(0, tt.field, tt.raw)
			_, hasErr := f.Errors()[FieldKey{Vehicle: 0, Field: tt.field}]
			if hasErr == tt.ok {
				t.Errorf("SetField(%s, %q): error present = %v", tt.field, tt.raw, hasErr)
			}
		})
	}
}

func TestFormValidityConditions(t *testing.T) {
	f := New()
	if f.IsValid() {
		t.Error("blank vehicle must not be valid")
	}

	fillVehicle(t, f, 0)
	f.SetAreaType("countryside")
	if f.IsValid() {
		t.Error("unknown area type must not be valid")
	}

	f.SetAreaType("expressway")
	f.SetSpeedLimit(0)
	if f.IsValid() {
		t.Error("zero speed limit must not be valid")
	}

	f.SetSpeedLimit(math.Inf(1))
	if f.IsValid() {
		t.Error("infinite speed limit must not be valid")
	}

	f.SetSpeedLimit(math.NaN())
	if f.IsValid() {
		t.Error("NaN speed limit must not be valid")
	}

	f.SetSpeedLimit(80)
	if !f.IsValid() {
		t.Error("expected valid form")
	}

	f.RemoveVehicle(0)
	if f.IsValid() {
		t.Error("form without vehicles must not be valid")
	}
	if _, err := f.Payload(); !errors.Is(err, ErrInvalidForm) {
		t.Errorf("expected ErrInvalidForm, got %v", err)
	}
}

func TestRemoveVehicleRekeysErrors(t *testing.T) {
	f := New()
	f.AddVehicle()
	f.AddVehicle()

	f.SetField(0, FieldSpeeds, "bad")
	f.SetField(2, FieldLaneViolations, "bad")

	if err := f.RemoveVehicle(0); err != nil {
		t.Fatalf("RemoveVehicle failed: %v", err)
	}

	errs := f.Errors()
	if len(errs) != 1 {
		t.Fatalf("expected one remaining error, got %v", errs)
	}
	if _, ok := errs[FieldKey{Vehicle: 1, Field: FieldLaneViolations}]; !ok {
		t.Errorf("expected error to move to vehicle 1, got %v", errs)
	}
}

func TestSetFieldRejectsBadAddresses(t *testing.T) {
	f := New()
	if err := f.SetField(3, FieldSpeeds, validSpeeds); !errors.Is(err, ErrNoSuchVehicle) {
		t.Errorf("expected ErrNoSuchVehicle, got %v", err)
	}
	if err := f.SetField(0, "acceleration", validSpeeds); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestLoadScenario(t *testing.T) {
	for _, name := range ScenarioNames() {
		t.Run(name, func(t *testing.T) {
			f := New()
			if err := f.LoadScenario(name); err != nil {
				t.Fatalf("LoadScenario failed: %v", err)
			}
			if !f.IsValid() {
				t.Errorf("sample scenario should be valid, errors: %v", f.Errors())
			}
			p, _ := f.Payload()
			if len(p.Vehicles) != len(Scenarios[name].Vehicles) {
				t.Errorf("expected %d vehicles, got %d", len(Scenarios[name].Vehicles), len(p.Vehicles))
			}
		})
	}

	f := New()
	if err := f.LoadScenario("nope"); !errors.Is(err, ErrUnknownScenario) {
		t.Errorf("expected ErrUnknownScenario, got %v", err)
	}
}

func TestStateOrdersErrors(t *testing.T) {
	f := New()
	f.AddVehicle()
	f.SetField(1, FieldSpeeds, "x")
	f.SetField(0, FieldLaneViolations, "x")
	f.SetField(0, FieldSpeeds, "x")

	st := f.State()
	if len(st.Errors) != 3 {
		t.Fatalf("expected 3 errors, got %d", len(st.Errors))
	}
	if st.Errors[0].Vehicle != 0 || st.Errors[0].Field != FieldSpeeds {
		t.Errorf("unexpected first error %+v", st.Errors[0])
	}
	if st.Errors[2].Vehicle != 1 {
		t.Errorf("unexpected last error %+v", st.Errors[2])
	}
	if st.Valid {
		t.Error("state with errors must not be valid")
	}
}
