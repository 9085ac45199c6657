package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mapglyph/mapglyph/pkg/slippy"
)

func TestResolve_CoordinateIdentity(t *testing.T) {
	n := NewNominatim(nil, "http://unused.invalid")

	cases := []struct {
		in   string
		want slippy.Coordinate
	}{
		{"-23.5505,-46.6333", slippy.Coordinate{Lat: -23.5505, Lon: -46.6333}},
		{" 51.5 , -0.12 ", slippy.Coordinate{Lat: 51.5, Lon: -0.12}},
		{"90,180", slippy.Coordinate{Lat: 90, Lon: 180}},
		{"-90,-180", slippy.Coordinate{Lat: -90, Lon: -180}},
	}
	for _, tc := range cases {
		got, err := n.Resolve(context.Background(), tc.in)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Resolve(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestResolve_InvalidCoordinate(t *testing.T) {
	n := NewNominatim(nil, "http://unused.invalid")
	_, err := n.Resolve(context.Background(), "91,0")
	if !errors.Is(err, slippy.ErrInvalidCoordinate) {
		t.Fatalf("err = %v, want ErrInvalidCoordinate", err)
	}
}

func TestResolve_AddressViaService(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if got := r.URL.Query().Get("q"); got != "Praça da Sé, São Paulo SP" {
			t.Errorf("q = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"lat":"-23.5503991","lon":"-46.6342329","display_name":"Praça da Sé"}]`))
	}))
	defer srv.Close()

	n := NewNominatim(nil, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := n.Resolve(ctx, "Praça da Sé, São Paulo SP")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Lat > -23.5 || got.Lat < -23.6 {
		t.Fatalf("unexpected latitude %v", got.Lat)
	}

	// second lookup is served from the memo
	if _, err := n.Resolve(ctx, "praça  da sé,  são paulo sp"); err != nil {
		t.Fatalf("memoized Resolve: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("service called %d times, want 1", calls.Load())
	}
}

func TestResolve_NoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	n := NewNominatim(nil, srv.URL)
	_, err := n.Resolve(context.Background(), "nowhere that exists")
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("err = %v, want ErrNoMatch", err)
	}
}

func TestResolve_ServiceUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewNominatim(nil, srv.URL)
	if _, err := n.Resolve(context.Background(), "somewhere"); err == nil {
		t.Fatalf("expected error from failing service")
	}
}

func TestResolveUnique_Ambiguous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			{"lat":"48.85","lon":"2.35","display_name":"Paris, France"},
			{"lat":"33.66","lon":"-95.55","display_name":"Paris, Texas"}
		]`))
	}))
	defer srv.Close()

	n := NewNominatim(nil, srv.URL)
	_, err := n.ResolveUnique(context.Background(), "Paris")
	if !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("err = %v, want ErrAmbiguous", err)
	}

	// the plain resolver picks the best-ranked candidate deterministically
	got, err := n.Resolve(context.Background(), "Paris")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Lat < 48 || got.Lat > 49 {
		t.Fatalf("expected first candidate, got %v", got)
	}
}

func TestParseCoordinate_Shapes(t *testing.T) {
	if _, isCoord, _ := ParseCoordinate("Praça da Sé"); isCoord {
		t.Fatalf("address misdetected as coordinate")
	}
	if _, isCoord, _ := ParseCoordinate("1,2,3"); isCoord {
		t.Fatalf("triple misdetected as coordinate")
	}
	_, isCoord, err := ParseCoordinate("95,10")
	if !isCoord || !errors.Is(err, slippy.ErrInvalidCoordinate) {
		t.Fatalf("out-of-range pair: isCoord=%v err=%v", isCoord, err)
	}
}
