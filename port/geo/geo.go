// Package geo is the port to geocoding services.
package geo

import (
	"context"
	"strings"
)

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IndiaCenter is reported whenever a place cannot be resolved.
var IndiaCenter = Coordinates{Lat: 20.5937, Lng: 78.9629}

// Place is a project site as entered by users.
type Place struct {
	State    string
	City     string
	Specific string
}

// Query is the search text for the place: "City, State, India",
// else "Specific, State, India", else "State, India".
// It is empty when the place has no state.
func (p Place) Query() string {
	state := strings.TrimSpace(p.State)
	city := strings.TrimSpace(p.City)
	specific := strings.TrimSpace(p.Specific)
	switch {
	case state == "":
		return ""
	case city != "":
		return city + ", " + state + ", India"
	case specific != "":
		return specific + ", " + state + ", India"
	default:
		return state + ", India"
	}
}

// Geocoder resolves a place to coordinates.
// Implementations fall back to IndiaCenter instead of failing.
type Geocoder interface {
	Geocode(ctx context.Context, p Place) Coordinates
}

type GeocoderFunc func(ctx context.Context, p Place) Coordinates

func (fn GeocoderFunc) Geocode(ctx context.Context, p Place) Coordinates { return fn(ctx, p) }

// Fixed resolves every place to IndiaCenter.
var Fixed Geocoder = GeocoderFunc(func(context.Context, Place) Coordinates { return IndiaCenter })
