package atlas

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nyc() City {
	return City{
		GeoNameID:    5128581,
		Name:         "New York City",
		CountryCode:  "US",
		CountryName:  "United States",
		Admin1:       "New York",
		TimeZone:     "America/New_York",
		Continent:    "NA",
		CurrencyCode: "USD",
		Latitude:     40.7128,
		Longitude:    -74.0060,
	}
}

func TestCityString(t *testing.T) {
	want := "City{geoNameId=5128581, name=New York City, countryCode=US, countryName=United States, " +
		"admin1=New York, admin2=, timeZone=America/New_York, continent=NA, currencyCode=USD, " +
		"latitude=40.712800, longitude=-74.006000}"
	assert.Equal(t, want, nyc().String())
}

func TestFindSingleCity(t *testing.T) {
	a := NewWithDataset(NewDataset([]City{nyc()}), DefaultMaxDistanceKm)

	c := a.Find(40.7128, -74.0060)
	require.NotNil(t, c)
	assert.Equal(t, nyc(), *c)

	assert.Nil(t, a.Find(0, 0), "no city within radius")
}

func TestFindReturnsCopy(t *testing.T) {
	a := NewWithDataset(NewDataset([]City{nyc()}), 0)
	c := a.Find(40.7, -74.0)
	require.NotNil(t, c)
	c.Name = "changed"
	assert.Equal(t, "New York City", a.Find(40.7, -74.0).Name)
}

func TestNewDatasetCopiesInput(t *testing.T) {
	in := []City{nyc()}
	ds := NewDataset(in)
	in[0].Name = "changed"
	assert.Equal(t, "New York City", ds.Cities()[0].Name)
}

func TestFindEmptyDataset(t *testing.T) {
	assert.Nil(t, NewWithDataset(NewDataset(nil), 0).Find(10, 10))
	assert.Nil(t, NewWithDataset(nil, 0).Find(10, 10))
	var a *Atlas
	assert.Nil(t, a.Find(10, 10))
	assert.Equal(t, 0, a.Len())
}

func TestGenerationAdvances(t *testing.T) {
	t.Cleanup(func() { SetLoader(nil) })
	g0 := Generation()
	SetDefault(NewDataset([]City{nyc()}))
	g1 := Generation()
	assert.Greater(t, g1, g0)

	SetLoader(func() (*Dataset, error) { return NewDataset(nil), nil })
	g2 := Generation()
	assert.Greater(t, g2, g1)

	_, err := Default()
	require.NoError(t, err)
	g3 := Generation()
	assert.Greater(t, g3, g2)
	_, err = Default()
	require.NoError(t, err)
	assert.Equal(t, g3, Generation(), "cached dataset keeps its generation")

	require.NoError(t, Reload())
	assert.Greater(t, Generation(), g3)
}

func TestFindWithinRadius(t *testing.T) {
	a := NewWithDataset(NewDataset([]City{{GeoNameID: 1, Name: "origin"}}), 50)

	// 赤道上 1° 经度约 111km
	assert.Nil(t, a.Find(0, 1))
	assert.Nil(t, a.FindWithin(0, 1, 100))
	require.NotNil(t, a.FindWithin(0, 1, 120))
	require.NotNil(t, a.FindWithin(0, 1, 0), "radius <= 0 is unbounded")
}

func TestFindAcrossAntimeridian(t *testing.T) {
	ds := NewDataset([]City{
		{GeoNameID: 1, Name: "east", Latitude: 0, Longitude: 179.9},
		{GeoNameID: 2, Name: "west", Latitude: 0, Longitude: -170},
	})
	c := NewWithDataset(ds, 0).Find(0, -179.9)
	require.NotNil(t, c)
	assert.Equal(t, "east", c.Name)
}

func TestFindHighLatitude(t *testing.T) {
	ds := NewDataset([]City{
		{GeoNameID: 1, Name: "near", Latitude: 78.2, Longitude: 15.6},
		{GeoNameID: 2, Name: "far", Latitude: 77.5, Longitude: 20.0},
	})
	c := NewWithDataset(ds, 0).Find(78.2, 18.0)
	require.NotNil(t, c)
	want := "near"
	if Haversine(78.2, 18.0, 77.5, 20.0) < Haversine(78.2, 18.0, 78.2, 15.6) {
		want = "far"
	}
	assert.Equal(t, want, c.Name)
}

func TestNearestMatchesBruteForce(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	cities := make([]City, 800)
	for i := range cities {
		cities[i] = City{
			GeoNameID: int64(i + 1),
			Latitude:  rnd.Float64()*180 - 90,
			Longitude: rnd.Float64()*360 - 180,
		}
	}
	a := NewWithDataset(NewDataset(cities), 0)
	for q := 0; q < 300; q++ {
		lat := rnd.Float64()*180 - 90
		lon := rnd.Float64()*360 - 180
		best := math.MaxFloat64
		for _, c := range cities {
			if d := Haversine(lat, lon, c.Latitude, c.Longitude); d < best {
				best = d
			}
		}
		got := a.Find(lat, lon)
		require.NotNil(t, got)
		assert.InDelta(t, best, Haversine(lat, lon, got.Latitude, got.Longitude), 1e-6)
	}
}

func TestChordToKmMatchesHaversine(t *testing.T) {
	d := chordToKm(dist2(toVec(40.7128, -74.0060), toVec(51.5074, -0.1278)))
	assert.InDelta(t, Haversine(40.7128, -74.0060, 51.5074, -0.1278), d, 1e-6)
	assert.InDelta(t, 5570, d, 10)
}

func TestDefaultSourceRetriesAfterError(t *testing.T) {
	t.Cleanup(func() { SetLoader(nil) })
	boom := errors.New("boom")
	calls := 0
	SetLoader(func() (*Dataset, error) {
		calls++
		if calls == 1 {
			return nil, boom
		}
		return NewDataset([]City{nyc()}), nil
	})

	_, err := New()
	require.ErrorIs(t, err, boom)

	a, err := New()
	require.NoError(t, err)
	assert.Equal(t, 1, a.Len())

	_, err = New()
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "dataset is loaded once after success")
}

func TestSetDefaultAndReload(t *testing.T) {
	t.Cleanup(func() { SetLoader(nil) })
	SetLoader(func() (*Dataset, error) { return NewDataset([]City{nyc(), {GeoNameID: 2}}), nil })
	SetDefault(NewDataset([]City{nyc()}))

	ds, err := Default()
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())

	require.NoError(t, Reload())
	ds, err = Default()
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())
}

func TestMaxDistanceFromEnv(t *testing.T) {
	t.Setenv("ATLAS_MAX_DISTANCE_KM", "")
	assert.Equal(t, DefaultMaxDistanceKm, maxDistanceFromEnv())
	t.Setenv("ATLAS_MAX_DISTANCE_KM", "120.5")
	assert.Equal(t, 120.5, maxDistanceFromEnv())
	t.Setenv("ATLAS_MAX_DISTANCE_KM", "-3")
	assert.Equal(t, DefaultMaxDistanceKm, maxDistanceFromEnv())
}

func TestLoadFromEnvSourceUnknown(t *testing.T) {
	_, err := LoadFromEnvSource("postgres", t.TempDir())
	assert.ErrorIs(t, err, ErrUnknownSource)
}
