// ABOUTME: Database operations for the campaigns cache
// ABOUTME: Maps provider sequence ids to display names
package db

import (
	"database/sql"
	"fmt"

	"github.com/jpchacon09/APOLLO/models"
)

// UpsertCampaigns replaces cached names for the given campaigns.
func UpsertCampaigns(db *sql.DB, campaigns []models.Campaign) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range campaigns {
		if c.ID == "" {
			continue
		}
		_, err := tx.Exec(`
			INSERT INTO campaigns (id, name, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				updated_at = excluded.updated_at
		`, c.ID, c.Name, c.UpdatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to upsert campaign: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit campaigns: %w", err)
	}
	return nil
}

// GetCampaignNames returns the id to name map.
func GetCampaignNames(db *sql.DB) (map[string]string, error) {
	campaigns, err := GetAllCampaigns(db)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(campaigns))
	for _, c := range campaigns {
		names[c.ID] = c.Name
	}
	return names, nil
}

// GetAllCampaigns lists cached campaigns ordered by name.
func GetAllCampaigns(db *sql.DB) ([]models.Campaign, error) {
	rows, err := db.Query(`SELECT id, name, updated_at FROM campaigns ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var campaigns []models.Campaign
	for rows.Next() {
		var c models.Campaign
		if err := rows.Scan(&c.ID, &c.Name, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaigns: %w", err)
	}
	return campaigns, nil
}
