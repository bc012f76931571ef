package geoapify_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"go.llib.dev/testcase"
	"go.llib.dev/testcase/assert"

	"plangrid/adapter/geoapify"
	"plangrid/port/geo"
)

func TestClient_Geocode(t *testing.T) {
	s := testcase.NewSpec(t)

	var (
		lastQuery = testcase.Let[url.Values](s, func(t *testcase.T) url.Values { return nil })
		status    = testcase.LetValue(s, http.StatusOK)
		body      = testcase.LetValue(s, `{"features":[{"geometry":{"coordinates":[72.87,19.07]},"properties":{"city":"Mumbai","state":"Maharashtra"}}]}`)
		apiKey    = testcase.LetValue(s, "key")
		place     = testcase.LetValue(s, geo.Place{State: "Maharashtra", City: "Mumbai"})
	)
	server := testcase.Let(s, func(t *testcase.T) *httptest.Server {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/geocode/search" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			lastQuery.Set(t, r.URL.Query())
			w.WriteHeader(status.Get(t))
			_, _ = w.Write([]byte(body.Get(t)))
		}))
		t.Defer(srv.Close)
		return srv
	})
	act := func(t *testcase.T) geo.Coordinates {
		c := geoapify.Client{
			APIKey:     apiKey.Get(t),
			BaseURL:    server.Get(t).URL,
			HTTPClient: server.Get(t).Client(),
		}
		return c.Geocode(context.Background(), place.Get(t))
	}

	s.Then("the first feature is read as [lng, lat]", func(t *testcase.T) {
		assert.Must(t).Equal(geo.Coordinates{Lat: 19.07, Lng: 72.87}, act(t))
		assert.Must(t).Equal("Mumbai, Maharashtra, India", lastQuery.Get(t).Get("text"))
		assert.Must(t).Equal("countrycode:in", lastQuery.Get(t).Get("filter"))
		assert.Must(t).Equal("key", lastQuery.Get(t).Get("apiKey"))
	})

	s.When("the state of the match differs", func(s *testcase.Spec) {
		place.LetValue(s, geo.Place{State: "Gujarat", City: "Mumbai"})

		s.Then("the match is still used", func(t *testcase.T) {
			assert.Must(t).Equal(geo.Coordinates{Lat: 19.07, Lng: 72.87}, act(t))
		})
	})

	s.When("nothing matches", func(s *testcase.Spec) {
		body.LetValue(s, `{"features":[]}`)

		s.Then("the fallback is returned", func(t *testcase.T) {
			assert.Must(t).Equal(geo.IndiaCenter, act(t))
		})
	})

	s.When("the API rejects the request", func(s *testcase.Spec) {
		status.LetValue(s, http.StatusUnauthorized)
		body.LetValue(s, `{"error":"Unauthorized"}`)

		s.Then("the fallback is returned", func(t *testcase.T) {
			assert.Must(t).Equal(geo.IndiaCenter, act(t))
		})
	})

	s.When("the place has no state", func(s *testcase.Spec) {
		place.LetValue(s, geo.Place{City: "Mumbai"})

		s.Then("no request is made", func(t *testcase.T) {
			assert.Must(t).Equal(geo.IndiaCenter, act(t))
			assert.Must(t).Nil(lastQuery.Get(t))
		})
	})

	s.When("no API key is configured", func(s *testcase.Spec) {
		apiKey.LetValue(s, "")

		s.Then("the fallback is returned without a request", func(t *testcase.T) {
			assert.Must(t).Equal(geo.IndiaCenter, act(t))
			assert.Must(t).Nil(lastQuery.Get(t))
		})
	})
}
