package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoplaces/geosearch/internal/geo"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return logrus.NewEntry(l)
}

func TestFetchPlacesForCellRequiresAPIKey(t *testing.T) {
	f := NewHTTPFetcher(Config{BaseURL: "http://example.invalid"}, testLogger())
	_, err := f.FetchPlacesForCell(context.Background(), geo.Cell{Level: 16})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestFetchPlacesForCellSucceedsWhenAllPlacesValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(placesAPIResponse{
			Results: []placesAPIResult{
				{Name: "Valid", Lat: 38.9, Lon: -77.0, State: "VA", Zip: "22030"},
			},
		})
	}))
	defer srv.Close()

	f := NewHTTPFetcher(Config{BaseURL: srv.URL, APIKey: "k"}, testLogger())
	places, err := f.FetchPlacesForCell(context.Background(), geo.Cell{Level: 16, CenterLat: 38.9, CenterLon: -77.0})
	require.NoError(t, err)
	require.Len(t, places, 1)
	assert.Equal(t, "Valid", places[0].Name)
}

func TestFetchPlacesForCellFailsWholeFetchOnInvalidPlace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(placesAPIResponse{
			Results: []placesAPIResult{
				{Name: "Valid", Lat: 38.9, Lon: -77.0, State: "VA", Zip: "22030"},
				{Name: "NoState", Lat: 38.9, Lon: -77.0, Zip: "22030"},
			},
		})
	}))
	defer srv.Close()

	f := NewHTTPFetcher(Config{BaseURL: srv.URL, APIKey: "k"}, testLogger())
	places, err := f.FetchPlacesForCell(context.Background(), geo.Cell{Level: 16, CenterLat: 38.9, CenterLon: -77.0})
	assert.ErrorIs(t, err, ErrInvalidPlace)
	assert.Nil(t, places)
}

func TestFetchPlacesForCellPropagatesUpstreamStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(Config{BaseURL: srv.URL, APIKey: "k"}, testLogger())
	_, err := f.FetchPlacesForCell(context.Background(), geo.Cell{Level: 16})
	assert.Error(t, err)
}
