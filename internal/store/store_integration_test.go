//go:build integration

package store

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoname/internal/atlas"
	"geoname/internal/migrate"
)

var testDB *sql.DB

func TestMain(m *testing.M) {
	_ = godotenv.Load("../../.env.test")
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		os.Exit(0)
	}
	var err error
	testDB, err = sql.Open("postgres", dsn)
	if err != nil {
		panic(err)
	}
	if err := migrate.EnsureSchema(context.Background(), testDB); err != nil {
		panic(err)
	}
	code := m.Run()
	_, _ = testDB.Exec("DROP TABLE IF EXISTS _geoname_cities")
	_ = testDB.Close()
	os.Exit(code)
}

func TestUpsertAndLoad(t *testing.T) {
	ctx := context.Background()
	_, err := testDB.ExecContext(ctx, "TRUNCATE _geoname_cities")
	require.NoError(t, err)
	st := AttachDB(testDB)

	cities := []atlas.City{
		{GeoNameID: 5128581, Name: "New York City", CountryCode: "US", CountryName: "United States",
			Admin1: "New York", TimeZone: "America/New_York", Continent: "NA", CurrencyCode: "USD",
			Latitude: 40.71427, Longitude: -74.00597},
		{GeoNameID: 2643743, Name: "London", CountryCode: "GB", Latitude: 51.50853, Longitude: -0.12574, Geohash: "gcpvj0"},
	}
	n, err := st.UpsertCities(ctx, cities)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	cities[1].Name = "City of London"
	_, err = st.UpsertCities(ctx, cities[1:])
	require.NoError(t, err)

	cnt, err := st.CountCities(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cnt)

	ds, err := st.LoadDataset(ctx)
	require.NoError(t, err)
	got := ds.Cities()
	require.Len(t, got, 2)
	assert.Equal(t, "City of London", got[0].Name)
	assert.Equal(t, "gcpvj0", got[0].Geohash)
	assert.Equal(t, "America/New_York", got[1].TimeZone)
	assert.NotEmpty(t, got[1].Geohash)

	c := atlas.NewWithDataset(ds, atlas.DefaultMaxDistanceKm).Find(40.7128, -74.0060)
	require.NotNil(t, c)
	assert.Equal(t, int64(5128581), c.GeoNameID)
}
