package geojson

import (
	"fmt"
	"strconv"

	"github.com/avelezdev/geolayers/internal/model"
)

// Merge combines FeatureCollections into one, optionally dropping features
// whose id was already seen in an earlier part.
func Merge(parts []model.FeatureCollection, dedupeByID bool) model.FeatureCollection {
	out := model.EmptyCollection()
	seen := map[string]struct{}{}

	for _, p := range parts {
		for _, f := range p.Features {
			if dedupeByID {
				if key := idKey(f.ID); key != "" {
					if _, dup := seen[key]; dup {
						continue
					}
					seen[key] = struct{}{}
				}
			}
			out.Features = append(out.Features, f)
		}
	}
	return out
}

// idKey normalizes string and numeric feature ids into distinct keyspaces so
// "7" and 7 never collide.
func idKey(id any) string {
	switch t := id.(type) {
	case nil:
		return ""
	case string:
		return "s:" + t
	case int64:
		return "n:" + strconv.FormatInt(t, 10)
	case int:
		return "n:" + strconv.Itoa(t)
	case float64:
		return "n:" + strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("x:%v", t)
	}
}
