package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/example/trafficwatch/internal/analysis"
	"github.com/example/trafficwatch/internal/fraudform"
	"github.com/example/trafficwatch/internal/models"
)

var (
	fraudCmd = &cobra.Command{
		Use:   "fraud",
		Short: "Submit the accident fraud form",
		Long: `Fill the fraud form from a sample scenario or a YAML/JSON file and submit it.

A form file looks like:

  area_type: urban
  speed_limit: 50
  vehicles:
    - speeds: "45,47,50,52,49,48,46,44,43,45"
      speed_violations: "0,0,0,1,0,0,0,0,0,0"
      red_light_violations: "0,0,0,0,0,0,0,0,0,0"
      lane_violations: "0,0,0,0,0,0,0,0,0,0"
`,
		Args: cobra.NoArgs,
		RunE: submitFraud,
	}

	fraudScenario string
	fraudFile     string
	fraudReport   string
)

func init() {
	fraudCmd.Flags().StringVarP(&fraudScenario, "scenario", "s", "", "Sample scenario ("+strings.Join(fraudform.ScenarioNames(), ", ")+")")
	fraudCmd.Flags().StringVarP(&fraudFile, "file", "f", "", "Form file (YAML or JSON)")
	fraudCmd.Flags().StringVarP(&fraudReport, "report", "r", "", "Also write a report (.txt or .docx)")
	fraudCmd.MarkFlagsMutuallyExclusive("scenario", "file")
	fraudCmd.MarkFlagsOneRequired("scenario", "file")
}

type vehicleFile struct {
	Speeds             string `yaml:"speeds"`
	SpeedViolations    string `yaml:"speed_violations"`
	RedLightViolations string `yaml:"red_light_violations"`
	LaneViolations     string `yaml:"lane_violations"`
}

type formFile struct {
	AreaType   string        `yaml:"area_type"`
	SpeedLimit float64       `yaml:"speed_limit"`
	Vehicles   []vehicleFile `yaml:"vehicles"`
}

func loadFormFile(path string, form *fraudform.Form) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var in formFile
	if err := yaml.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("failed to parse form file: %w", err)
	}

	vehicles := make([]fraudform.VehicleInput, 0, len(in.Vehicles))
	for _, v := range in.Vehicles {
		vehicles = append(vehicles, fraudform.VehicleInput{
			Speeds:             v.Speeds,
			SpeedViolations:    v.SpeedViolations,
			RedLightViolations: v.RedLightViolations,
			LaneViolations:     v.LaneViolations,
		})
	}
	form.Replace(vehicles, in.AreaType, in.SpeedLimit)
	return nil
}

func submitFraud(cmd *cobra.Command, args []string) error {
	manager := newManager(nil)
	defer manager.CloseAll()

	ws, err := manager.Create(string(models.CategoryFraud))
	if err != nil {
		return err
	}
	form, err := ws.Form()
	if err != nil {
		return err
	}

	if fraudScenario != "" {
		err = form.LoadScenario(fraudScenario)
	} else {
		err = loadFormFile(fraudFile, form)
	}
	if err != nil {
		return err
	}

	_, err = ws.SubmitForm(cmd.Context())
	var validation *analysis.ValidationError
	if errors.As(err, &validation) {
		state := form.State()
		if outputFormat == "json" {
			printJSON(cmd.OutOrStdout(), state)
		} else {
			for _, fe := range state.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "vehicle %d %s: %s\n", fe.Vehicle+1, fe.Field, fe.Message)
			}
		}
		if len(state.Errors) == 0 {
			return err
		}
		return fmt.Errorf("form has %d invalid field(s)", len(state.Errors))
	}
	if err != nil {
		return err
	}

	return finish(cmd, ws, fraudReport)
}
