package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"gridreg/internal/grid/handler/mocks"
	"gridreg/internal/grid/models"
	id "gridreg/pkg/domain"
	dErrors "gridreg/pkg/domain-errors"
	"gridreg/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/grid-mocks.go -package=mocks Service

const projectID = "NCCR-MH-2025-001"

type HandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	r := chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	s.router = r
}

func (s *HandlerSuite) TestRegister_Created() {
	cellID := id.NewCellID()
	s.service.EXPECT().Register(gomock.Any(), projectID, models.RegisterRequest{
		CellRef:    "G-001",
		MemberName: "Asha",
	}).Return(&models.RegistrationResult{
		MemberID:    id.NewMemberID().String(),
		CellID:      cellID.String(),
		GridID:      "G-001",
		MemberCount: 5,
		IsFull:      true,
	}, nil)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/projects/"+projectID+"/registrations",
		map[string]string{"cellRef": "G-001", "memberName": "Asha"})
	rr := testutil.DoRequest(s.router, req)

	s.Equal(http.StatusCreated, rr.Code)
	body := testutil.Decode[map[string]any](s.T(), rr)
	s.Equal(cellID.String(), body["cellId"])
	s.Equal(float64(5), body["memberCount"])
	s.Equal(true, body["isFull"])
	s.NotContains(body, "replayed")
}

func (s *HandlerSuite) TestRegister_IdempotencyHeader() {
	s.service.EXPECT().Register(gomock.Any(), projectID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, req models.RegisterRequest) (*models.RegistrationResult, error) {
			s.Equal("retry-7", req.IdempotencyKey)
			return &models.RegistrationResult{MemberCount: 1, Replayed: true}, nil
		})

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/projects/"+projectID+"/registrations",
		map[string]string{"cellRef": "G-001", "memberName": "Asha"})
	req.Header.Set(IdempotencyKeyHeader, "retry-7")
	rr := testutil.DoRequest(s.router, req)

	s.Equal(http.StatusOK, rr.Code, "replays answer 200")
}

func (s *HandlerSuite) TestRegister_ErrorMapping() {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid input", dErrors.New(dErrors.CodeInvalidInput, "memberName is required"), http.StatusBadRequest, "invalid_input"},
		{"cell not found", dErrors.New(dErrors.CodeCellNotFound, "cell G-404 not found"), http.StatusNotFound, "cell_not_found"},
		{"cell full", dErrors.New(dErrors.CodeCellFull, "cell G-001 is full"), http.StatusConflict, "cell_full"},
		{"store unavailable", dErrors.New(dErrors.CodeStoreUnavailable, "retry"), http.StatusServiceUnavailable, "store_unavailable"},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.service.EXPECT().Register(gomock.Any(), projectID, gomock.Any()).Return(nil, tt.err)

			req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/projects/"+projectID+"/registrations",
				map[string]string{"cellRef": "G-001", "memberName": "Asha"})
			rr := testutil.DoRequest(s.router, req)

			testutil.AssertStatusAndError(s.T(), rr, tt.status, tt.code)
		})
	}
}

func (s *HandlerSuite) TestRegister_MalformedBody() {
	rr := testutil.DoRequest(s.router, testutil.NewRawRequest(http.MethodPost, "/projects/"+projectID+"/registrations", "{not json"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")

	rr = testutil.DoRequest(s.router, testutil.NewRawRequest(http.MethodPost, "/projects/"+projectID+"/registrations", ""))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *HandlerSuite) TestAvailableCells() {
	cells := []models.AvailableCell{{CellID: id.NewCellID(), GridID: "G-001", MemberCount: 2}}
	s.service.EXPECT().AvailableCells(gomock.Any(), projectID).Return(cells, nil)

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/projects/"+projectID+"/cells/available", nil))

	s.Equal(http.StatusOK, rr.Code)
	got := testutil.Decode[[]models.AvailableCell](s.T(), rr)
	s.Equal(cells[0].CellID, got[0].CellID)
}

func (s *HandlerSuite) TestLoadCells_FeatureCollection() {
	s.service.EXPECT().LoadCells(gomock.Any(), projectID, []models.CellSeed{
		{GridID: "G-001", Geometry: []byte(`{"type":"Polygon"}`)},
		{GridID: "G-002", Geometry: []byte(`{}`)},
	}).Return(2, nil)

	body := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"gridID":"G-001"},"geometry":{"type":"Polygon"}},
		{"type":"Feature","properties":{"gridID":"G-002"},"geometry":null}]}`
	rr := testutil.DoRequest(s.router, testutil.NewRawRequest(http.MethodPost, "/projects/"+projectID+"/cells", body))

	s.Equal(http.StatusCreated, rr.Code)
	s.Equal(2, testutil.Decode[loadCellsResponse](s.T(), rr).InsertedCount)
}

func (s *HandlerSuite) TestLoadCells_MissingGridID() {
	body := `{"features":[{"properties":{},"geometry":{}}]}`
	rr := testutil.DoRequest(s.router, testutil.NewRawRequest(http.MethodPost, "/projects/"+projectID+"/cells", body))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
}

func (s *HandlerSuite) TestCellDetail() {
	cellID := id.NewCellID()
	s.service.EXPECT().CellDetail(gomock.Any(), cellID).Return(&models.CellDetail{
		Cell:    models.Cell{ID: cellID, GridID: "G-001", MemberCount: 1},
		Members: []models.Member{{ID: id.NewMemberID(), CellID: cellID, Name: "Asha", Status: models.StatusPending}},
	}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/cells/"+cellID.String(), nil))

	s.Equal(http.StatusOK, rr.Code)
	got := testutil.Decode[models.CellDetail](s.T(), rr)
	s.Equal("G-001", got.Cell.GridID)
	s.Require().Len(got.Members, 1)
	s.Equal(models.StatusPending, got.Members[0].Status)
}

func (s *HandlerSuite) TestCellDetail_BadAndUnknownID() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/cells/not-a-uuid", nil))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")

	s.service.EXPECT().CellDetail(gomock.Any(), gomock.Any()).Return(nil, dErrors.New(dErrors.CodeCellNotFound, "cell not found"))
	rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/cells/"+id.NewCellID().String(), nil))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "cell_not_found")
}

func (s *HandlerSuite) TestMembers() {
	cellID := id.NewCellID()
	s.service.EXPECT().Members(gomock.Any(), cellID).Return([]models.Member{}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/cells/"+cellID.String()+"/members", nil))

	s.Equal(http.StatusOK, rr.Code)
	s.JSONEq(`[]`, rr.Body.String())
}

func (s *HandlerSuite) TestProjectCellsAndLastID() {
	s.service.EXPECT().ProjectCells(gomock.Any(), projectID).Return([]models.CellAggregate{
		{Cell: models.Cell{GridID: "G-001", MemberCount: 2}, LiveCount: 2},
	}, nil)
	s.service.EXPECT().LastGridNumber(gomock.Any(), projectID).Return(88, nil)

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/projects/"+projectID+"/cells", nil))
	s.Equal(http.StatusOK, rr.Code)
	aggs := testutil.Decode[[]models.CellAggregate](s.T(), rr)
	s.Equal(2, aggs[0].LiveCount)

	rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/projects/"+projectID+"/cells/last-id", nil))
	s.Equal(http.StatusOK, rr.Code)
	s.JSONEq(`{"lastId":88}`, rr.Body.String())
}
