package analysis

import (
	"strings"

	"github.com/example/trafficwatch/internal/models"
)

// Endpoint is one detector route on the backend
type Endpoint struct {
	Name     string          `json:"name"`
	Category models.Category `json:"category"`
	Path     string          `json:"path"`
	// Form endpoints take a JSON body instead of a multipart file
	Form bool `json:"form"`
	// Shape names the response layout the renderer expects
	Shape string `json:"shape"`
}

const (
	EndpointAccidentImage = "accident-image"
	EndpointAccidentVideo = "accident-video"
	EndpointFraudVideo    = "fraud-video"
	EndpointFraudForm     = "fraud-form"
	EndpointLaneMarking   = "lane-marking"
	EndpointLaneChange    = "lane-change"
	EndpointUTurn         = "uturn"
	EndpointSpeed         = "speed"
	EndpointRoadSign      = "road-sign"
	EndpointTrafficLight  = "traffic-light"
)

// Endpoints is the default route table
var Endpoints = []Endpoint{
	{Name: EndpointAccidentImage, Category: models.CategoryAccident, Path: "/accidents/test-image", Shape: "accident"},
	{Name: EndpointAccidentVideo, Category: models.CategoryAccident, Path: "/accidents/run", Shape: "accident"},
	{Name: EndpointFraudVideo, Category: models.CategoryFraud, Path: "/fraud/run", Shape: "fraud-video"},
	{Name: EndpointFraudForm, Category: models.CategoryFraud, Path: "/fraud/predict", Form: true, Shape: "fraud-form"},
	{Name: EndpointLaneMarking, Category: models.CategoryLane, Path: "/lane/run", Shape: "lane-marking"},
	{Name: EndpointLaneChange, Category: models.CategoryLaneChange, Path: "/lanepatheval/run", Shape: "lane-change"},
	{Name: EndpointUTurn, Category: models.CategoryUTurn, Path: "/plate/run", Shape: "uturn"},
	{Name: EndpointSpeed, Category: models.CategorySpeed, Path: "/speed/run", Shape: "speed"},
	{Name: EndpointRoadSign, Category: models.CategoryRoadSign, Path: "/roadsign/run", Shape: "road-sign"},
	{Name: EndpointTrafficLight, Category: models.CategoryTrafficLight, Path: "/trafficlight/run", Shape: "traffic-light"},
}

// LookupEndpoint finds an endpoint by name
func LookupEndpoint(name string) (Endpoint, bool) {
	for _, ep := range Endpoints {
		if ep.Name == name {
			return ep, true
		}
	}
	return Endpoint{}, false
}

// FileEndpoint picks the upload endpoint for a category. Accident pages
// send stills to the image detector and everything else to the video one.
func FileEndpoint(category models.Category, mimeType string) (Endpoint, bool) {
	var name string
	switch category {
	case models.CategoryAccident:
		if strings.HasPrefix(strings.ToLower(mimeType), "image/") {
			name = EndpointAccidentImage
		} else {
			name = EndpointAccidentVideo
		}
	case models.CategoryFraud:
		name = EndpointFraudVideo
	case models.CategoryLane:
		name = EndpointLaneMarking
	case models.CategoryLaneChange:
		name = EndpointLaneChange
	case models.CategoryUTurn:
		name = EndpointUTurn
	case models.CategorySpeed:
		name = EndpointSpeed
	case models.CategoryRoadSign:
		name = EndpointRoadSign
	case models.CategoryTrafficLight:
		name = EndpointTrafficLight
	default:
		return Endpoint{}, false
	}
	return LookupEndpoint(name)
}
