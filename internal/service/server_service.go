package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"vpnkey-hub/internal/model"
	"vpnkey-hub/internal/provisioner"
	"vpnkey-hub/internal/repository"
)

var (
	ErrInvalidServerInput = errors.New("invalid server input")
	ErrInvalidGeoInput    = errors.New("invalid country or city input")
	ErrCountryNotFound    = errors.New("country not found")
	ErrCityNotFound       = errors.New("city not found")
)

type CreateServerRequest struct {
	Name       string  `json:"name"`
	CityID     *string `json:"city_id,omitempty"`
	Location   string  `json:"location"`
	Kind       string  `json:"kind"`
	APIURL     string  `json:"api_url"`
	APIKey     string  `json:"api_key"`
	CertSHA256 string  `json:"cert_sha256"`
}

type UpdateServerRequest struct {
	Name       *string `json:"name,omitempty"`
	CityID     *string `json:"city_id,omitempty"`
	Location   *string `json:"location,omitempty"`
	APIURL     *string `json:"api_url,omitempty"`
	APIKey     *string `json:"api_key,omitempty"`
	CertSHA256 *string `json:"cert_sha256,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

type ServerService struct {
	serverRepo   repository.ServerRepository
	provisioners provisioner.Factory
	logger       *zap.Logger
}

func NewServerService(serverRepo repository.ServerRepository, provisioners provisioner.Factory, logger *zap.Logger) *ServerService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ServerService{
		serverRepo:   serverRepo,
		provisioners: provisioners,
		logger:       logger,
	}
}

func (s *ServerService) Create(ctx context.Context, req CreateServerRequest) (*model.VPNServer, error) {
	name := strings.TrimSpace(req.Name)
	apiURL := strings.TrimSpace(req.APIURL)
	if name == "" || apiURL == "" {
		return nil, ErrInvalidServerInput
	}

	kind := model.ServerKind(strings.TrimSpace(req.Kind))
	switch kind {
	case model.ServerKindOutline, model.ServerKindWireGuard:
	case "":
		kind = model.ServerKindOutline
	default:
		return nil, ErrInvalidServerInput
	}

	var cityID *uuid.UUID
	if req.CityID != nil && strings.TrimSpace(*req.CityID) != "" {
		parsed, err := uuid.Parse(strings.TrimSpace(*req.CityID))
		if err != nil {
			return nil, ErrInvalidServerInput
		}
		cityID = &parsed
	}

	server := &model.VPNServer{
		ID:         uuid.New(),
		Name:       name,
		CityID:     cityID,
		Location:   strings.TrimSpace(req.Location),
		Kind:       kind,
		APIURL:     apiURL,
		APIKey:     strings.TrimSpace(req.APIKey),
		CertSHA256: strings.TrimSpace(req.CertSHA256),
		Active:     true,
	}

	if err := s.serverRepo.Create(ctx, server); err != nil {
		return nil, mapUniqueViolation(err, ErrInvalidServerInput)
	}

	return s.serverRepo.FindByID(ctx, server.ID)
}

func (s *ServerService) Update(ctx context.Context, serverID string, req UpdateServerRequest) (*model.VPNServer, error) {
	id, err := uuid.Parse(strings.TrimSpace(serverID))
	if err != nil {
		return nil, ErrInvalidServerInput
	}

	current, err := s.serverRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrServerNotFound
		}
		return nil, err
	}

	next := *current
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			return nil, ErrInvalidServerInput
		}
		next.Name = trimmed
	}
	if req.CityID != nil {
		if strings.TrimSpace(*req.CityID) == "" {
			next.CityID = nil
		} else {
			parsed, err := uuid.Parse(strings.TrimSpace(*req.CityID))
			if err != nil {
				return nil, ErrInvalidServerInput
			}
			next.CityID = &parsed
		}
	}
	if req.Location != nil {
		next.Location = strings.TrimSpace(*req.Location)
	}
	if req.APIURL != nil {
		trimmed := strings.TrimSpace(*req.APIURL)
		if trimmed == "" {
			return nil, ErrInvalidServerInput
		}
		next.APIURL = trimmed
	}
	if req.APIKey != nil {
		next.APIKey = strings.TrimSpace(*req.APIKey)
	}
	if req.CertSHA256 != nil {
		next.CertSHA256 = strings.TrimSpace(*req.CertSHA256)
	}
	if req.Active != nil {
		next.Active = *req.Active
	}

	if err := s.serverRepo.Update(ctx, &next); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrServerNotFound
		}
		return nil, err
	}

	return s.serverRepo.FindByID(ctx, id)
}

// Deactivate takes the server out of rotation for new issuance. Existing keys
// stay untouched.
func (s *ServerService) Deactivate(ctx context.Context, serverID string) error {
	return s.setActive(ctx, serverID, false)
}

func (s *ServerService) Activate(ctx context.Context, serverID string) error {
	return s.setActive(ctx, serverID, true)
}

func (s *ServerService) setActive(ctx context.Context, serverID string, active bool) error {
	id, err := uuid.Parse(strings.TrimSpace(serverID))
	if err != nil {
		return ErrInvalidServerInput
	}

	if err := s.serverRepo.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrServerNotFound
		}
		return err
	}
	return nil
}

func (s *ServerService) Delete(ctx context.Context, serverID string) error {
	id, err := uuid.Parse(strings.TrimSpace(serverID))
	if err != nil {
		return ErrInvalidServerInput
	}

	if err := s.serverRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrServerNotFound
		}
		return err
	}
	return nil
}

func (s *ServerService) Get(ctx context.Context, serverID string) (*model.VPNServer, error) {
	id, err := uuid.Parse(strings.TrimSpace(serverID))
	if err != nil {
		return nil, ErrInvalidServerInput
	}

	server, err := s.serverRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrServerNotFound
		}
		return nil, err
	}
	return server, nil
}

func (s *ServerService) List(ctx context.Context, onlyActive bool) ([]*model.VPNServer, error) {
	return s.serverRepo.List(ctx, onlyActive)
}

// TestConnection asks the server's control plane for its identity. The typed
// adapter failure propagates so the caller can tell unreachable from a bad
// credential.
func (s *ServerService) TestConnection(ctx context.Context, serverID string) (*provisioner.ServerInfo, error) {
	server, err := s.Get(ctx, serverID)
	if err != nil {
		return nil, err
	}

	client, err := s.provisioners.ClientFor(server)
	if err != nil {
		return nil, err
	}

	return client.ServerInfo(ctx)
}

func (s *ServerService) ListCountries(ctx context.Context) ([]*model.Country, error) {
	return s.serverRepo.ListCountries(ctx)
}

func (s *ServerService) CreateCountry(ctx context.Context, name string) (*model.Country, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidGeoInput
	}

	country := &model.Country{ID: uuid.New(), Name: name}
	if err := s.serverRepo.CreateCountry(ctx, country); err != nil {
		return nil, mapUniqueViolation(err, ErrInvalidGeoInput)
	}
	return country, nil
}

func (s *ServerService) DeleteCountry(ctx context.Context, countryID string) error {
	id, err := uuid.Parse(strings.TrimSpace(countryID))
	if err != nil {
		return ErrInvalidGeoInput
	}

	if err := s.serverRepo.DeleteCountry(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrCountryNotFound
		}
		return err
	}
	return nil
}

func (s *ServerService) ListCities(ctx context.Context, countryID *string) ([]*model.City, error) {
	var filter *uuid.UUID
	if countryID != nil && strings.TrimSpace(*countryID) != "" {
		parsed, err := uuid.Parse(strings.TrimSpace(*countryID))
		if err != nil {
			return nil, ErrInvalidGeoInput
		}
		filter = &parsed
	}

	return s.serverRepo.ListCities(ctx, filter)
}

func (s *ServerService) CreateCity(ctx context.Context, name, countryID string) (*model.City, error) {
	name = strings.TrimSpace(name)
	cid, err := uuid.Parse(strings.TrimSpace(countryID))
	if name == "" || err != nil {
		return nil, ErrInvalidGeoInput
	}

	city := &model.City{ID: uuid.New(), Name: name, CountryID: cid}
	if err := s.serverRepo.CreateCity(ctx, city); err != nil {
		return nil, mapUniqueViolation(err, ErrInvalidGeoInput)
	}
	return city, nil
}

func (s *ServerService) DeleteCity(ctx context.Context, cityID string) error {
	id, err := uuid.Parse(strings.TrimSpace(cityID))
	if err != nil {
		return ErrInvalidGeoInput
	}

	if err := s.serverRepo.DeleteCity(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrCityNotFound
		}
		return err
	}
	return nil
}

func mapUniqueViolation(err error, mapped error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return mapped
	}
	return err
}
