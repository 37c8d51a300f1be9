package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/orderdesk/api/internal/repositories"
)

const locationIDPrefix = "loc_"

// LocationServiceDeps bundles the collaborators required to construct a location service.
type LocationServiceDeps struct {
	Locations   repositories.LocationRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type locationService struct {
	repo  repositories.LocationRepository
	clock func() time.Time
	newID func() string
}

var _ LocationService = (*locationService)(nil)

func NewLocationService(deps LocationServiceDeps) (LocationService, error) {
	if deps.Locations == nil {
		return nil, errors.New("location service: location repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &locationService{
		repo:  deps.Locations,
		clock: func() time.Time { return clock().UTC() },
		newID: idGen,
	}, nil
}

func (s *locationService) CreateLocation(ctx context.Context, cmd CreateLocationCommand) (Location, error) {
	if err := validateStruct(ErrInventoryInvalidInput, cmd).orNil(); err != nil {
		return Location{}, err
	}
	location := Location{
		ID:        locationIDPrefix + s.newID(),
		Name:      strings.TrimSpace(cmd.Name),
		Address:   strings.TrimSpace(cmd.Address),
		CreatedAt: s.clock(),
	}
	if err := s.repo.Insert(ctx, location); err != nil {
		return Location{}, mapPersistenceError(err, ErrInventoryNotFound, ErrInventoryConflict)
	}
	return location, nil
}

func (s *locationService) ListLocations(ctx context.Context) ([]Location, error) {
	locations, err := s.repo.List(ctx)
	if err != nil {
		return nil, mapPersistenceError(err, ErrInventoryNotFound, ErrInventoryConflict)
	}
	return locations, nil
}
