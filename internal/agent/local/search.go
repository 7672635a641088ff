// ABOUTME: Offline Searcher returning well-known places for a handful of Korean destinations
// ABOUTME: Falls back to generic landmarks named after the query

package local

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/voyage-gateway/internal/agent"
)

var knownPlaces = map[string][]agent.Place{
	"busan": {
		{Name: "Haeundae Beach", Category: "beach", RoadAddress: "264 Haeundaehaebyeon-ro, Haeundae-gu, Busan"},
		{Name: "Gamcheon Culture Village", Category: "village", RoadAddress: "203 Gamnae 2-ro, Saha-gu, Busan"},
		{Name: "Jagalchi Market", Category: "market", RoadAddress: "52 Jagalchihaean-ro, Jung-gu, Busan"},
		{Name: "Taejongdae", Category: "park", RoadAddress: "24 Jeonmang-ro, Yeongdo-gu, Busan"},
		{Name: "Gwangalli Beach", Category: "beach", RoadAddress: "219 Gwanganhaebyeon-ro, Suyeong-gu, Busan"},
		{Name: "Beomeosa Temple", Category: "temple", RoadAddress: "250 Beomeosa-ro, Geumjeong-gu, Busan"},
	},
	"jeju": {
		{Name: "Seongsan Ilchulbong", Category: "nature", RoadAddress: "284-12 Ilchul-ro, Seongsan-eup, Seogwipo"},
		{Name: "Hallasan National Park", Category: "hiking", RoadAddress: "2070-61 1100-ro, Jeju"},
		{Name: "Hyeopjae Beach", Category: "beach", RoadAddress: "329-10 Hallim-ro, Hallim-eup, Jeju"},
	},
	"seoul": {
		{Name: "Gyeongbokgung", Category: "palace", RoadAddress: "161 Sajik-ro, Jongno-gu, Seoul"},
		{Name: "Bukchon Hanok Village", Category: "village", RoadAddress: "37 Gyedong-gil, Jongno-gu, Seoul"},
		{Name: "Gwangjang Market", Category: "market", RoadAddress: "88 Changgyeonggung-ro, Jongno-gu, Seoul"},
	},
}

var koreanNames = map[string]string{"부산": "busan", "제주": "jeju", "서울": "seoul"}

// Searcher implements agent.Searcher without network access.
type Searcher struct{}

var _ agent.Searcher = Searcher{}

// SearchPlaces returns up to limit places matching query.
func (Searcher) SearchPlaces(ctx context.Context, query string, limit int) ([]agent.Place, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}
	lower := strings.ToLower(query)
	for ko, en := range koreanNames {
		lower = strings.ReplaceAll(lower, ko, en)
	}
	for key, places := range knownPlaces {
		if strings.Contains(lower, key) {
			return places[:min(limit, len(places))], nil
		}
	}

	name := query
	if fields := strings.Fields(query); len(fields) > 0 {
		name = fields[0]
	}
	var out []agent.Place
	for i, kind := range []string{"Old Town", "Central Market", "Riverside Park"} {
		if i >= limit {
			break
		}
		out = append(out, agent.Place{Name: fmt.Sprintf("%s %s", name, kind), Category: "landmark", Address: name})
	}
	return out, nil
}
