// ABOUTME: Campaign name cache refresh from the provider
// ABOUTME: Lets sync runs resolve sequence names the message search omits
package sync

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jpchacon09/APOLLO/db"
	"github.com/jpchacon09/APOLLO/models"
)

// CampaignLister lists the provider's sequences.
type CampaignLister interface {
	ListCampaigns(ctx context.Context) ([]models.Campaign, error)
}

// RefreshCampaigns replaces the cached campaign names with the provider's list.
// Returns how many campaigns were stored.
func RefreshCampaigns(ctx context.Context, lister CampaignLister, database *sql.DB) (int, error) {
	campaigns, err := lister.ListCampaigns(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list campaigns: %w", err)
	}

	now := time.Now().UTC()
	stored := 0
	for i := range campaigns {
		if campaigns[i].UpdatedAt.IsZero() {
			campaigns[i].UpdatedAt = now
		}
		if campaigns[i].ID != "" {
			stored++
		}
	}

	if err := db.UpsertCampaigns(database, campaigns); err != nil {
		return 0, err
	}

	return stored, nil
}
