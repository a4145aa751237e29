package seeder

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/vnmchuo/agent-ledger/internal/directory"
)

const (
	DemoCustomerName  = "Demo Customer"
	DemoCustomerEmail = "demo@example.com"
)

// SeedDemoCustomer creates a demo customer so the service is usable out of
// the box. Enabled with RUN_SEED=true.
func SeedDemoCustomer(ctx context.Context, store directory.Store) {
	existing, err := store.List(ctx)
	if err == nil {
		for _, c := range existing {
			if c.Name == DemoCustomerName {
				log.Printf("[Seeder] Demo customer already exists: %s", c.ID)
				return
			}
		}
	}

	c := &directory.Customer{
		ID:    uuid.New().String(),
		Name:  DemoCustomerName,
		Email: DemoCustomerEmail,
	}
	if err := store.Create(ctx, c); err != nil {
		log.Printf("[Seeder] Failed to create demo customer: %v", err)
		return
	}
	log.Printf("[Seeder] Demo customer created: %s", c.ID)
}
