package server

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/raterudder/eiademand/pkg/aggregate"
	"github.com/raterudder/eiademand/pkg/metrics"
	"github.com/raterudder/eiademand/pkg/storage"
	"github.com/raterudder/eiademand/pkg/storage/storagemock"
	"github.com/raterudder/eiademand/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var tableStart = time.Date(2015, 7, 1, 23, 0, 0, 0, time.UTC)

func testTable(n int) types.Table {
	t := types.Table{Entity: "CISO", Schema: types.SchemaWithForecast}
	for i := 0; i < n; i++ {
		t.Rows = append(t.Rows, types.Row{
			Time:     tableStart.Add(time.Duration(i) * time.Hour),
			Demand:   types.Number(float64(100 + i)),
			Forecast: types.Missing(),
			Cleaned:  types.Missing(),
		})
	}
	return t
}

func newTestServer() (*Server, *storagemock.MockDatabase, *mockAggregator, *mockRunner) {
	db := new(storagemock.MockDatabase)
	agg := new(mockAggregator)
	runner := new(mockRunner)
	srv := &Server{
		storage:    db,
		agg:        agg,
		pipeline:   runner,
		layout:     types.LayoutSeries,
		bypassAuth: true,
		now:        time.Now,
	}
	return srv, db, agg, runner
}

func TestHealthz(t *testing.T) {
	srv, _, _, _ := newTestServer()
	srv.serverName = "eiademand"
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.Equal(t, "eiademand", rr.Header().Get("Server"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Contains(t, rr.Header().Get("Content-Security-Policy"), "default-src 'none'")
	assert.Empty(t, rr.Header().Get("Cache-Control"))
}

func TestListTables(t *testing.T) {
	t.Run("names", func(t *testing.T) {
		srv, db, _, _ := newTestServer()
		db.On("ListTables", mock.Anything).Return([]string{"CAL", "CISO"}, nil)

		rr := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tables", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `["CAL","CISO"]`, rr.Body.String())
	})

	t.Run("empty", func(t *testing.T) {
		srv, db, _, _ := newTestServer()
		db.On("ListTables", mock.Anything).Return(nil, nil)

		rr := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tables", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `[]`, rr.Body.String())
	})

	t.Run("error", func(t *testing.T) {
		srv, db, _, _ := newTestServer()
		db.On("ListTables", mock.Anything).Return(nil, errors.New("boom"))

		rr := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tables", nil))
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestGetTable(t *testing.T) {
	t.Run("series layout", func(t *testing.T) {
		srv, db, _, _ := newTestServer()
		db.On("GetTable", mock.Anything, "CISO", types.SchemaWithForecast).Return(testTable(2), nil)

		rr := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tables/CISO", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="CISO.csv"`, rr.Header().Get("Content-Disposition"))
		assert.Equal(t, "series_id,time,demand (MW),forecast demand (MW)\n"+
			"CISO,20150701T23Z,100,MISSING\n"+
			"CISO,20150702T00Z,101,MISSING\n", rr.Body.String())
	})

	t.Run("calendar layout and schema", func(t *testing.T) {
		srv, db, _, _ := newTestServer()
		db.On("GetTable", mock.Anything, "CISO", types.SchemaBasic).Return(testTable(2), nil)

		rr := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tables/CISO?schema=basic&layout=calendar", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "time,year,month,day,hour,demand (MW)\n"+
			"20150701T23Z,2015,7,1,23,100\n"+
			"20150702T00Z,2015,7,1,24,101\n", rr.Body.String())
	})

	t.Run("imputed default schema", func(t *testing.T) {
		srv, db, _, _ := newTestServer()
		table := testTable(1)
		table.Schema = types.SchemaWithForecastAndCleaned
		db.On("GetTable", mock.Anything, "CISO_mean_impute", types.SchemaWithForecastAndCleaned).Return(table, nil)

		rr := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tables/CISO_mean_impute", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "cleaned demand (MW)")
		db.AssertExpectations(t)
	})

	t.Run("gzip", func(t *testing.T) {
		srv, db, _, _ := newTestServer()
		db.On("GetTable", mock.Anything, "CISO", types.SchemaWithForecast).Return(testTable(500), nil)

		req := httptest.NewRequest(http.MethodGet, "/api/tables/CISO", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		rr := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "gzip", rr.Header().Get("Content-Encoding"))

		zr, err := gzip.NewReader(rr.Body)
		require.NoError(t, err)
		body, err := io.ReadAll(zr)
		require.NoError(t, err)
		assert.Equal(t, 501, bytes.Count(body, []byte("\n")))
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			err  error
			code int
		}{
			{fmt.Errorf("failed: %w", storage.ErrTableNotFound), http.StatusNotFound},
			{&types.SchemaError{Table: "CISO", Column: "forecast demand (MW)"}, http.StatusUnprocessableEntity},
			{&types.ParseError{Table: "CISO", Row: 3, Value: "x"}, http.StatusUnprocessableEntity},
			{errors.New("boom"), http.StatusInternalServerError},
		}
		for _, tt := range tests {
			srv, db, _, _ := newTestServer()
			db.On("GetTable", mock.Anything, "CISO", types.SchemaWithForecast).Return(types.Table{}, tt.err)

			rr := httptest.NewRecorder()
			srv.setupHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tables/CISO", nil))
			assert.Equal(t, tt.code, rr.Code, tt.err.Error())
		}
	})

	t.Run("bad query", func(t *testing.T) {
		srv, _, _, _ := newTestServer()
		for _, q := range []string{"?schema=nope", "?layout=nope"} {
			rr := httptest.NewRecorder()
			srv.setupHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tables/CISO"+q, nil))
			assert.Equal(t, http.StatusBadRequest, rr.Code, q)
		}
	})
}

func postAggregate(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/aggregate", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(rr, req)
	return rr
}

func TestAggregate(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv, _, agg, _ := newTestServer()
		table := testTable(3)
		table.Entity = "MINE"
		agg.On("Aggregate", mock.Anything, []string{"CISO", "BANC"}, "MINE", true).Return(table, nil)

		rr := postAggregate(t, srv, `{"name": "MINE", "members": ["CISO", "BANC"], "imputed": true}`)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

		var resp aggregateResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "MINE_mean_impute", resp.Name)
		assert.Equal(t, 3, resp.Rows)
		assert.True(t, tableStart.Equal(resp.Start))
		assert.True(t, tableStart.Add(2*time.Hour).Equal(resp.End))
		agg.AssertExpectations(t)
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			err  error
			code int
		}{
			{&aggregate.AlignmentError{Target: "MINE", Seed: "CISO", Entity: "BANC", Row: 10}, http.StatusConflict},
			{&types.SchemaError{Table: "BANC", Column: "forecast demand (MW)"}, http.StatusUnprocessableEntity},
			{fmt.Errorf("%w for MINE", aggregate.ErrNoUsableEntities), http.StatusBadRequest},
			{fmt.Errorf("failed to load BANC: %w", storage.ErrTableNotFound), http.StatusNotFound},
		}
		for _, tt := range tests {
			srv, _, agg, _ := newTestServer()
			agg.On("Aggregate", mock.Anything, []string{"CISO", "BANC"}, "MINE", false).Return(types.Table{}, tt.err)

			rr := postAggregate(t, srv, `{"name": "MINE", "members": ["CISO", "BANC"]}`)
			assert.Equal(t, tt.code, rr.Code, tt.err.Error())
			var resp map[string]string
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.NotEmpty(t, resp["error"])
		}
	})

	t.Run("invalid requests", func(t *testing.T) {
		srv, _, agg, _ := newTestServer()
		for _, body := range []string{`not json`, `{"name": "MINE"}`, `{"members": ["CISO"]}`} {
			rr := postAggregate(t, srv, body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, body)
		}
		agg.AssertNotCalled(t, "Aggregate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("method not allowed", func(t *testing.T) {
		srv, _, _, _ := newTestServer()
		rr := httptest.NewRecorder()
		srv.setupHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/aggregate", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _, _ := newTestServer()
	srv.metrics = metrics.New()
	srv.metrics.Aggregated("CAL", metrics.ResultOK)

	rr := httptest.NewRecorder()
	srv.setupHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `eiademand_aggregations_total{result="ok",target="CAL"} 1`)
}
