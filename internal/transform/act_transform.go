// Package transform holds the pure, deterministic functions that map raw
// upstream documents (MusicBrainz artists, Bandsintown JSON-LD events)
// onto the canonical entity.Act / entity.Event shapes.
package transform

import (
	"strings"

	"github.com/liverty-music/actcache/internal/entity"
)

// recognisedRelations maps a raw MusicBrainz relation type to its
// normalised key in entity.Act.Relations. Types not listed here (besides
// "youtube" and "social network", handled specially below) are discarded.
var recognisedRelations = map[string]string{
	"allmusic":      "allmusic",
	"bandcamp":      "bandcamp",
	"bandsintown":   "bandsintown",
	"discogs":       "discogs",
	"lastfm":        "lastfm",
	"lyrics":        "lyrics",
	"myspace":       "myspace",
	"setlistfm":     "setlistfm",
	"songkick":      "songkick",
	"soundcloud":    "soundcloud",
	"viaf":          "viaf",
	"wikidata":      "wikidata",
	"youtube music": "youtubeMusic",
}

// socialDomains maps a substring found in a "social network" relation's URL
// to the relation key it should be stored under. Other social URLs are
// discarded.
var socialDomains = []struct {
	substr string
	key    string
}{
	{"twitter.com", "twitter"},
	{"facebook.com", "facebook"},
	{"instagram.com", "instagram"},
	{"tiktok.com", "tiktok"},
}

// Act maps a raw MusicBrainz artist document onto the canonical act shape,
// less Events, Status, and UpdatedAt — those are filled in by the
// Enricher once event data and the current time are available.
//
// Act is total: for any raw document it returns a well-formed partial
// record, never an error.
func Act(raw *entity.RawAct) *entity.Act {
	act := &entity.Act{
		ID:             raw.ID,
		Name:           raw.Name,
		Country:        raw.Country,
		Region:         raw.Region,
		Disambiguation: raw.Disambiguation,
		Ended:          raw.Ended,
		Status:         raw.Status,
		Relations:      relations(raw.Relations),
	}
	return act
}

// relations reduces the raw relation list to the normalised map described
// in spec.md §4.3. On duplicate keys, last write wins.
func relations(raw []entity.RawRelation) map[string]string {
	out := make(map[string]string, len(raw))

	for _, r := range raw {
		rtype := strings.ToLower(strings.TrimSpace(r.Type))

		switch {
		case rtype == "youtube":
			// Abandoned channels (ended=true) are dropped.
			if !r.Ended {
				out["youtube"] = r.URL
			}

		case rtype == "social network":
			if key, ok := socialKey(r.URL); ok {
				out[key] = r.URL
			}

		default:
			if key, ok := recognisedRelations[rtype]; ok {
				out[key] = r.URL
			}
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// socialKey classifies a "social network" relation URL by the recognised
// platform domain it contains.
func socialKey(url string) (string, bool) {
	for _, d := range socialDomains {
		if strings.Contains(url, d.substr) {
			return d.key, true
		}
	}
	return "", false
}
