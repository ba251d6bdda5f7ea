package handler_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridreg/internal/grid/handler"
	"gridreg/internal/grid/models"
	"gridreg/internal/grid/service"
	"gridreg/internal/grid/store/memory"
	"gridreg/pkg/testutil"
)

const projectID = "NCCR-MH-2025-001"

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	store := memory.New()
	require.NoError(t, store.AddProject(context.Background(), projectID))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(store, store, store, service.WithEvents(store), service.WithLogger(logger))

	r := chi.NewRouter()
	handler.New(svc, logger).Register(r)
	return r
}

func TestRegistrationOverHTTP(t *testing.T) {
	router := newRouter(t)

	testutil.Given(t, "a project with one loaded cell", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/projects/"+projectID+"/cells",
			map[string]any{"cells": []map[string]any{{"gridId": "G-001"}}}))
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		testutil.When(t, "ten registrants race for the cell", func(t *testing.T) {
			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				statuses = map[int]int{}
			)
			for i := range 10 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					req := testutil.NewJSONRequest(t, http.MethodPost, "/projects/"+projectID+"/registrations",
						map[string]string{"gridId": "G-001", "memberName": fmt.Sprintf("member-%d", i)})
					rr := testutil.DoRequest(router, req)
					mu.Lock()
					statuses[rr.Code]++
					mu.Unlock()
				}()
			}
			wg.Wait()

			testutil.Then(t, "five are created and five conflict", func(t *testing.T) {
				assert.Equal(t, map[int]int{http.StatusCreated: 5, http.StatusConflict: 5}, statuses)
			})

			testutil.Then(t, "the cell is no longer offered", func(t *testing.T) {
				rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/projects/"+projectID+"/cells/available", nil))
				require.Equal(t, http.StatusOK, rr.Code)
				assert.JSONEq(t, `[]`, rr.Body.String())
			})

			testutil.Then(t, "the cell detail lists five members", func(t *testing.T) {
				rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/projects/"+projectID+"/cells", nil))
				aggs := testutil.Decode[[]models.CellAggregate](t, rr)
				require.Len(t, aggs, 1)

				rr = testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/cells/"+aggs[0].ID.String(), nil))
				require.Equal(t, http.StatusOK, rr.Code)
				detail := testutil.Decode[models.CellDetail](t, rr)
				assert.Len(t, detail.Members, models.CellCapacity)
				assert.True(t, detail.Cell.IsFull)
			})
		})
	})
}

func TestLoadCellsOverHTTP_UnknownProject(t *testing.T) {
	router := newRouter(t)
	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/projects/NCCR-XX-2025-404/cells",
		map[string]any{"cells": []map[string]any{{"gridId": "G-001"}}}))
	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
}

func TestRegisterOverHTTP_UnknownCell(t *testing.T) {
	router := newRouter(t)
	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/projects/"+projectID+"/registrations",
		map[string]string{"cellRef": "G-404", "memberName": "Asha"}))
	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "cell_not_found")
}
