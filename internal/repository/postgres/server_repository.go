package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vpnkey-hub/internal/model"
	"vpnkey-hub/internal/repository"
)

type serverRepository struct {
	pool *pgxpool.Pool
}

func NewServerRepository(pool *pgxpool.Pool) repository.ServerRepository {
	return &serverRepository{pool: pool}
}

var _ repository.ServerRepository = (*serverRepository)(nil)

const serverColumns = `
	id,
	name,
	city_id,
	location,
	kind,
	api_url,
	api_key,
	cert_sha256,
	active,
	created_at,
	updated_at
`

func (r *serverRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.VPNServer, error) {
	query := `SELECT ` + serverColumns + ` FROM vpn_servers WHERE id = $1`
	server, err := scanServer(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return server, nil
}

func (r *serverRepository) Create(ctx context.Context, server *model.VPNServer) error {
	if server.ID == uuid.Nil {
		server.ID = uuid.New()
	}

	now := time.Now().UTC()
	if server.CreatedAt.IsZero() {
		server.CreatedAt = now
	}
	if server.UpdatedAt.IsZero() {
		server.UpdatedAt = server.CreatedAt
	}

	query := `
		INSERT INTO vpn_servers (
			id, name, city_id, location, kind,
			api_url, api_key, cert_sha256, active,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.pool.Exec(
		ctx,
		query,
		server.ID,
		server.Name,
		server.CityID,
		server.Location,
		server.Kind,
		server.APIURL,
		server.APIKey,
		server.CertSHA256,
		server.Active,
		server.CreatedAt,
		server.UpdatedAt,
	)
	return err
}

func (r *serverRepository) Update(ctx context.Context, server *model.VPNServer) error {
	server.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE vpn_servers
		SET name = $2,
			city_id = $3,
			location = $4,
			kind = $5,
			api_url = $6,
			api_key = $7,
			cert_sha256 = $8,
			active = $9,
			updated_at = $10
		WHERE id = $1
	`

	tag, err := r.pool.Exec(
		ctx,
		query,
		server.ID,
		server.Name,
		server.CityID,
		server.Location,
		server.Kind,
		server.APIURL,
		server.APIKey,
		server.CertSHA256,
		server.Active,
		server.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func (r *serverRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := `UPDATE vpn_servers SET active = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, active)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func (r *serverRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM vpn_servers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func (r *serverRepository) List(ctx context.Context, onlyActive bool) ([]*model.VPNServer, error) {
	query := `SELECT ` + serverColumns + ` FROM vpn_servers`
	if onlyActive {
		query += ` WHERE active`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	servers := make([]*model.VPNServer, 0, 16)
	for rows.Next() {
		item, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return servers, nil
}

func (r *serverRepository) ListCountries(ctx context.Context) ([]*model.Country, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM countries ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	countries := make([]*model.Country, 0, 16)
	for rows.Next() {
		item := &model.Country{}
		if err := rows.Scan(&item.ID, &item.Name); err != nil {
			return nil, err
		}
		countries = append(countries, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return countries, nil
}

func (r *serverRepository) CreateCountry(ctx context.Context, country *model.Country) error {
	if country.ID == uuid.Nil {
		country.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO countries (id, name) VALUES ($1, $2)`, country.ID, country.Name)
	return err
}

func (r *serverRepository) DeleteCountry(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM countries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func (r *serverRepository) ListCities(ctx context.Context, countryID *uuid.UUID) ([]*model.City, error) {
	query := `SELECT id, name, country_id FROM cities`
	args := make([]any, 0, 1)
	if countryID != nil {
		query += ` WHERE country_id = $1`
		args = append(args, *countryID)
	}
	query += ` ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cities := make([]*model.City, 0, 16)
	for rows.Next() {
		item := &model.City{}
		if err := rows.Scan(&item.ID, &item.Name, &item.CountryID); err != nil {
			return nil, err
		}
		cities = append(cities, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return cities, nil
}

func (r *serverRepository) CreateCity(ctx context.Context, city *model.City) error {
	if city.ID == uuid.Nil {
		city.ID = uuid.New()
	}
	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO cities (id, name, country_id) VALUES ($1, $2, $3)`,
		city.ID,
		city.Name,
		city.CountryID,
	)
	return err
}

func (r *serverRepository) DeleteCity(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM cities WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func scanServer(src scanTarget) (*model.VPNServer, error) {
	server := &model.VPNServer{}
	err := src.Scan(
		&server.ID,
		&server.Name,
		&server.CityID,
		&server.Location,
		&server.Kind,
		&server.APIURL,
		&server.APIKey,
		&server.CertSHA256,
		&server.Active,
		&server.CreatedAt,
		&server.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return server, nil
}
