package devserver

import (
	"fmt"

	"github.com/matheus3301/nestsync/internal/store"
)

// DemoUsers and DemoProperties are loaded by Seed.
var (
	DemoUsers = []store.User{
		{ID: "student-1", Name: "Sam Student", Role: "student"},
		{ID: "landlord-1", Name: "Lee Landlord", Role: "landlord"},
		{ID: "landlord-2", Name: "Kim Keeper", Role: "landlord"},
	}
	DemoProperties = []store.Property{
		{ID: "prop-1", Title: "Room in shared flat near campus", OwnerID: "landlord-1"},
		{ID: "prop-2", Title: "Studio with balcony", OwnerID: "landlord-2"},
	}
)

// Seed loads the demo users and properties. Running it twice is harmless.
func Seed(db *store.DB) error {
	for i := range DemoUsers {
		if err := db.UpsertUser(&DemoUsers[i]); err != nil {
			return fmt.Errorf("seed user %s: %w", DemoUsers[i].ID, err)
		}
	}
	for i := range DemoProperties {
		if err := db.UpsertProperty(&DemoProperties[i]); err != nil {
			return fmt.Errorf("seed property %s: %w", DemoProperties[i].ID, err)
		}
	}
	return nil
}
