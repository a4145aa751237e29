// Package directory is the customer lookup service. Customers are created
// and listed here; the executor only ever asks whether a customer exists.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("directory: customer not found")

const cacheTTL = 5 * time.Minute

type Customer struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	ExternalID string    `json:"external_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// MarshalBinary implements encoding.BinaryMarshaler for Redis
func (c *Customer) MarshalBinary() ([]byte, error) {
	return json.Marshal(c)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for Redis
func (c *Customer) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, c)
}

type Store interface {
	Create(ctx context.Context, c *Customer) error
	Get(ctx context.Context, id string) (*Customer, error)
	List(ctx context.Context) ([]*Customer, error)
}

// Directory fronts the store with a Redis read-through cache. Contact fields
// may change, so entries expire rather than being invalidated.
type Directory struct {
	store Store
	cache *redis.Client
}

func New(store Store, cache *redis.Client) *Directory {
	return &Directory{store: store, cache: cache}
}

func cacheKey(id string) string {
	return fmt.Sprintf("customer:%s", id)
}

// Lookup resolves a customer id, returning ErrNotFound for unknown ids.
func (d *Directory) Lookup(ctx context.Context, id string) (*Customer, error) {
	if d.cache != nil {
		var c Customer
		err := d.cache.Get(ctx, cacheKey(id)).Scan(&c)
		if err == nil {
			return &c, nil
		} else if err != redis.Nil {
			log.Printf("directory: redis error: %v", err)
		}
	}

	c, err := d.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if d.cache != nil {
		_ = d.cache.Set(ctx, cacheKey(id), c, cacheTTL).Err()
	}
	return c, nil
}

func (d *Directory) Create(ctx context.Context, c *Customer) error {
	if err := d.store.Create(ctx, c); err != nil {
		return err
	}
	if d.cache != nil {
		_ = d.cache.Set(ctx, cacheKey(c.ID), c, cacheTTL).Err()
	}
	return nil
}

func (d *Directory) List(ctx context.Context) ([]*Customer, error) {
	return d.store.List(ctx)
}
