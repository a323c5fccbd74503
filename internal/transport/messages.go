package transport

import "github.com/geoplaces/geosearch/internal/cache"

// Default coordinates used when a location_update omits lat/lon/radius,
// taken from the original service's GMU fallback constants.
const (
	DefaultLat    = 38.832352857203624
	DefaultLon    = -77.31284409452543
	DefaultRadius = 1000.0
)

// inboundEnvelope is used only to sniff the "type" field before decoding
// the full payload.
type inboundEnvelope struct {
	Type string `json:"type"`
}

// locationUpdateMessage is the client->server location_update payload.
// Fields are pointers so a present-but-zero value is distinguishable from
// an absent one, which is what triggers the GMU defaults.
type locationUpdateMessage struct {
	Type   string   `json:"type"`
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
	Radius *float64 `json:"radius"`
}

func (m locationUpdateMessage) resolvedLat() float64 {
	if m.Lat == nil {
		return DefaultLat
	}
	return *m.Lat
}

func (m locationUpdateMessage) resolvedLon() float64 {
	if m.Lon == nil {
		return DefaultLon
	}
	return *m.Lon
}

func (m locationUpdateMessage) resolvedRadius() float64 {
	if m.Radius == nil {
		return DefaultRadius
	}
	return *m.Radius
}

// wirePlace is the server->client Place shape. Its JSON keys
// (latitude/longitude/zip_code) match cache.Place's tags; only the Go field
// names differ (Latitude/Longitude/ZipCode rather than Lat/Lon/Zip).
type wirePlace struct {
	Name      string   `json:"name"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	State     string   `json:"state"`
	ZipCode   string   `json:"zip_code"`
	Types     []string `json:"types"`
}

func toWirePlaces(places []cache.Place) []wirePlace {
	out := make([]wirePlace, len(places))
	for i, p := range places {
		out[i] = wirePlace{
			Name:      p.Name,
			Latitude:  p.Lat,
			Longitude: p.Lon,
			State:     p.State,
			ZipCode:   p.Zip,
			Types:     p.Types,
		}
	}
	return out
}

type placesUpdateMessage struct {
	Type   string      `json:"type"`
	Places []wirePlace `json:"places"`
}

type placesCompleteMessage struct {
	Type  string `json:"type"`
	Total int    `json:"total"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
