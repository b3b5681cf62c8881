// ABOUTME: Curated stories, songs, jokes and facts loaded from an embedded YAML catalog
// ABOUTME: Lookup filters by type and age, prefers the child's interests, then picks at random
package content

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/harper/companion-engine/internal/capability"
	"github.com/harper/companion-engine/internal/models"
)

//go:embed library.yaml
var embeddedLibrary []byte

type catalog struct {
	Items []models.LibraryContent `yaml:"items"`
}

// Library implements capability.ContentLibrary.
type Library struct {
	items []models.LibraryContent
	rng   capability.RNG
}

var _ capability.ContentLibrary = (*Library)(nil)

// NewLibrary loads the embedded catalog.
func NewLibrary(rng capability.RNG) (*Library, error) {
	return LoadLibrary(embeddedLibrary, rng)
}

// LoadLibrary parses a YAML catalog.
func LoadLibrary(data []byte, rng capability.RNG) (*Library, error) {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing content library: %w", err)
	}
	seen := make(map[string]bool, len(c.Items))
	for _, item := range c.Items {
		if item.ID == "" {
			return nil, fmt.Errorf("content library item %q has no id", item.Title)
		}
		if seen[item.ID] {
			return nil, fmt.Errorf("duplicate content library id %q", item.ID)
		}
		if !item.Type.IsMedia() {
			return nil, fmt.Errorf("content library item %q has non-media type %s", item.ID, item.Type)
		}
		seen[item.ID] = true
	}
	if rng == nil {
		rng = capability.NewSeededRNG(0)
	}
	return &Library{items: c.Items, rng: rng}, nil
}

// Len returns the number of catalog items.
func (l *Library) Len() int {
	return len(l.items)
}

// Lookup returns an age-appropriate item of the given type, or nil.
func (l *Library) Lookup(_ context.Context, contentType models.ContentType, profile *models.UserProfile) (*models.LibraryContent, error) {
	age := profile.EffectiveAge()

	var eligible []models.LibraryContent
	for _, item := range l.items {
		if item.Type != contentType {
			continue
		}
		if age < item.MinAge || (item.MaxAge > 0 && age > item.MaxAge) {
			continue
		}
		eligible = append(eligible, item)
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	if profile != nil {
		var preferred []models.LibraryContent
		for _, item := range eligible {
			if sharesTag(item.Tags, profile.Interests) {
				preferred = append(preferred, item)
			}
		}
		if len(preferred) > 0 {
			eligible = preferred
		}
	}

	picked := eligible[l.rng.IntN(len(eligible))]
	picked.Tags = append([]string(nil), picked.Tags...)
	return &picked, nil
}

func sharesTag(tags, interests []string) bool {
	for _, tag := range tags {
		for _, interest := range interests {
			if strings.EqualFold(tag, interest) {
				return true
			}
		}
	}
	return false
}
