package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/orderdesk/api/internal/domain"
	pfirestore "github.com/orderdesk/api/internal/platform/firestore"
)

const locationsCollection = "locations"

type locationDocument struct {
	Name      string    `firestore:"name"`
	Address   string    `firestore:"address,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func (d locationDocument) toDomain(id string) domain.Location {
	return domain.Location{ID: id, Name: d.Name, Address: d.Address, CreatedAt: d.CreatedAt}
}

// LocationRepository stores stock locations.
type LocationRepository struct {
	locations *pfirestore.BaseRepository[locationDocument]
}

func NewLocationRepository(provider *pfirestore.Provider) (*LocationRepository, error) {
	if provider == nil {
		return nil, errors.New("location repository requires firestore provider")
	}
	return &LocationRepository{
		locations: pfirestore.NewBaseRepository[locationDocument](provider, locationsCollection, nil, nil),
	}, nil
}

func (r *LocationRepository) Insert(ctx context.Context, location domain.Location) error {
	if r == nil || r.locations == nil {
		return errors.New("location repository not initialised")
	}
	id := strings.TrimSpace(location.ID)
	if id == "" {
		return errors.New("location insert: id is required")
	}
	return r.locations.Create(ctx, id, locationDocument{
		Name:      strings.TrimSpace(location.Name),
		Address:   strings.TrimSpace(location.Address),
		CreatedAt: location.CreatedAt.UTC(),
	})
}

func (r *LocationRepository) FindByID(ctx context.Context, locationID string) (domain.Location, error) {
	if r == nil || r.locations == nil {
		return domain.Location{}, errors.New("location repository not initialised")
	}
	doc, err := r.locations.Get(ctx, strings.TrimSpace(locationID))
	if err != nil {
		return domain.Location{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *LocationRepository) List(ctx context.Context) ([]domain.Location, error) {
	if r == nil || r.locations == nil {
		return nil, errors.New("location repository not initialised")
	}
	docs, err := r.locations.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Location, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}
