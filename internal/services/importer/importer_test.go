package importer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/matchsync/internal/model"
	"github.com/mcoot/matchsync/internal/testutil"
)

const teamID = "acc0bd69-4a1f-4d01-ab7a-3d0df654655e"

type ImporterSuite struct {
	suite.Suite
	server   *httptest.Server
	status   int
	body     string
	lastPath string
	client   *Client
	ctx      context.Context
}

func TestImporterSuite(t *testing.T) {
	suite.Run(t, new(ImporterSuite))
}

func (s *ImporterSuite) SetupTest() {
	s.status = http.StatusOK
	s.body = ""
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.lastPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(s.status)
		_, _ = w.Write([]byte(s.body))
	}))
	s.client = New(Config{BaseURL: s.server.URL + "/", Timeout: time.Second, RequestsPerSecond: 100, Burst: 100}, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *ImporterSuite) TearDownTest() {
	s.server.Close()
}

func (s *ImporterSuite) TestImportMapsFields() {
	s.body = `{
		"name": "Gotham Knights",
		"units": [
			{"set_id": "btas", "collector_number": "017", "name": "Batman", "point_value": 120},
			{"set_id": "wol", "number": 42, "name": "Robin", "points": "45"},
			{"set_id": "ff", "name": "Utility Belt", "point_value": 0, "points": 5}
		]
	}`

	team, err := s.client.ImportTeam(s.ctx, teamID)
	s.Require().NoError(err)

	s.Equal("/api/v1/teams/"+teamID, s.lastPath)
	s.Equal("Gotham Knights", team.Name)
	s.Equal([]model.UnitInput{
		{Collection: "btas", Number: "017", Name: "Batman", Points: 120},
		{Collection: "wol", Number: "42", Name: "Robin", Points: 45},
		{Collection: "ff", Number: "000", Name: "Utility Belt", Points: 5},
	}, team.Units)
}

func (s *ImporterSuite) TestImportDefaultsTeamName() {
	s.body = `{"units": [{"set_id": "btas", "name": "Batman", "point_value": 120}]}`

	team, err := s.client.ImportTeam(s.ctx, teamID)
	s.Require().NoError(err)
	s.Equal("Imported Team", team.Name)
}

func (s *ImporterSuite) TestImportAcceptsLink() {
	s.body = `{"name": "x", "units": [{"set_id": "btas", "name": "Batman", "point_value": 120}]}`

	_, err := s.client.ImportTeam(s.ctx, "https://hcunits.net/teams/"+teamID+"/")
	s.Require().NoError(err)
	s.Equal("/api/v1/teams/"+teamID, s.lastPath)
}

func (s *ImporterSuite) TestImportNotFound() {
	s.status = http.StatusNotFound
	_, err := s.client.ImportTeam(s.ctx, teamID)
	s.ErrorIs(err, model.ErrTeamNotFound)
	s.ErrorIs(err, model.ErrNotFound)
}

func (s *ImporterSuite) TestImportServerErrorIsTransient() {
	s.status = http.StatusBadGateway
	_, err := s.client.ImportTeam(s.ctx, teamID)
	s.ErrorIs(err, model.ErrTransientIO)
}

func (s *ImporterSuite) TestImportMalformedBodies() {
	bodies := map[string]string{
		"not json":       `<html>`,
		"no units":       `{"name": "Empty", "units": []}`,
		"missing points": `{"units": [{"set_id": "btas", "name": "Batman"}]}`,
		"missing name":   `{"units": [{"set_id": "btas", "point_value": 10}]}`,
		"bad points":     `{"units": [{"set_id": "btas", "name": "Batman", "points": "lots"}]}`,
	}
	for name, body := range bodies {
		s.Run(name, func() {
			s.body = body
			_, err := s.client.ImportTeam(s.ctx, teamID)
			s.ErrorIs(err, model.ErrMalformedTeam)
		})
	}
}

func (s *ImporterSuite) TestImportNetworkFailureIsTransient() {
	s.server.Close()
	_, err := s.client.ImportTeam(s.ctx, teamID)
	s.ErrorIs(err, model.ErrTransientIO)
}

func (s *ImporterSuite) TestImportRejectsBadReference() {
	_, err := s.client.ImportTeam(s.ctx, "https://example.com/not a team")
	s.ErrorIs(err, model.ErrInvalidTeamRef)
}

func TestExtractTeamID(t *testing.T) {
	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{ref: teamID, want: teamID},
		{ref: "  https://hcunits.net/teams/ACC0BD69-4A1F-4D01-AB7A-3D0DF654655E/ ", want: teamID},
		{ref: "team_42", want: "team_42"},
		{ref: "", wantErr: true},
		{ref: "../../etc/passwd", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := ExtractTeamID(tt.ref)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ExtractTeamID(%q) = %q, want error", tt.ref, got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ExtractTeamID(%q) = %q, %v; want %q", tt.ref, got, err, tt.want)
			}
		})
	}
}
