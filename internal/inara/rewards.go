// ED Companion - Market Feed and Community Goal Daemons
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edcompanion

package inara

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/tomtom215/edcompanion/internal/models"
)

// ParseRewards extracts the reward tiers from the community goals page.
// Table i on the page belongs to goal i; the first row of every table is
// its header. Rows with fewer than three cells are skipped.
func ParseRewards(r io.Reader) ([][]models.Reward, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	var tables [][]models.Reward
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rewards := []models.Reward{}
		table.Find("tr").Slice(1, goquery.ToEnd).Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() < 3 {
				return
			}
			rewards = append(rewards, models.Reward{
				Tier:         cellText(cells, 0),
				Contributors: cellText(cells, 1),
				Reward:       cellText(cells, 2),
			})
		})
		tables = append(tables, rewards)
	})
	return tables, nil
}

func cellText(cells *goquery.Selection, i int) string {
	return strings.TrimSpace(cells.Eq(i).Text())
}
