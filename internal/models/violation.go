// Package models provides data structures shared across the dashboard service
package models

import (
	"strings"
)

// Category identifies one violation detection domain
type Category string

const (
	CategoryAccident     Category = "accident"
	CategoryFraud        Category = "fraud"
	CategoryLane         Category = "lane"
	CategoryLaneChange   Category = "lane-change"
	CategoryUTurn        Category = "uturn"
	CategorySpeed        Category = "speed"
	CategoryRoadSign     Category = "road-sign"
	CategoryTrafficLight Category = "traffic-light"
)

// CategoryInfo describes a category page of the dashboard
type CategoryInfo struct {
	Category    Category `json:"category"`
	Title       string   `json:"title"`
	Route       string   `json:"route"`
	AcceptsForm bool     `json:"acceptsForm"`
}

// Categories lists every violation category in sidebar order
var Categories = []CategoryInfo{
	{Category: CategoryAccident, Title: "Accident Detection", Route: "/accident-detection"},
	{Category: CategoryFraud, Title: "Accident Fraud Detection", Route: "/accident-fraud", AcceptsForm: true},
	{Category: CategoryLaneChange, Title: "Lane Path Violation", Route: "/lane-violation"},
	{Category: CategoryLane, Title: "Lane Marking Detection", Route: "/lane-marking"},
	{Category: CategoryTrafficLight, Title: "Traffic Light Violations", Route: "/traffic-light"},
	{Category: CategorySpeed, Title: "Speed Violation Detection", Route: "/speed-violation"},
	{Category: CategoryRoadSign, Title: "Road Sign Detection", Route: "/road-sign"},
	{Category: CategoryUTurn, Title: "U-Turn Detection", Route: "/u-turn"},
}

// ParseCategory accepts a category name or its page route
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, info := range Categories {
		if string(info.Category) == s || info.Route == s {
			return info.Category, true
		}
	}
	return "", false
}

// Info returns the page description for a category
func (c Category) Info() (CategoryInfo, bool) {
	for _, info := range Categories {
		if info.Category == c {
			return info, true
		}
	}
	return CategoryInfo{}, false
}

// MarkCategory is the kind of an annotation overlay mark
type MarkCategory string

const (
	MarkSpeed        MarkCategory = "Speed"
	MarkAccident     MarkCategory = "Accident"
	MarkLane         MarkCategory = "Lane"
	MarkTrafficLight MarkCategory = "Traffic Light"
	MarkRoadSign     MarkCategory = "Road Sign"
)

// ParseMarkCategory matches case-insensitively; unknown names are kept as-is
func ParseMarkCategory(s string) MarkCategory {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "speed":
		return MarkSpeed
	case "accident":
		return MarkAccident
	case "lane":
		return MarkLane
	case "traffic light", "trafficlight", "traffic-light":
		return MarkTrafficLight
	case "road sign", "roadsign", "road-sign":
		return MarkRoadSign
	}
	return MarkCategory(s)
}

// BoundingBox is a rectangle in normalised [0,1] frame coordinates
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// AnnotationMark is a detection pinned to a moment of the media
type AnnotationMark struct {
	TimeSeconds float64      `json:"time"`
	Category    MarkCategory `json:"type"`
	Description string       `json:"description"`
	Confidence  float64      `json:"confidence,omitempty"`
	BoundingBox *BoundingBox `json:"boundingBox,omitempty"`
}
