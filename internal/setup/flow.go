package setup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"masjidbox-bridge/internal/masjidbox"
	"masjidbox-bridge/internal/model"
	"masjidbox-bridge/internal/sensor"
	"masjidbox-bridge/internal/store"
)

// Form error codes, reported under the "base" key.
const (
	CodeSlugRequired      = "slug_required"
	CodeAPIKeyRequired    = "apikey_required"
	CodeInvalidDays       = "invalid_days"
	CodeAlreadyConfigured = "already_configured"
)

// entryNamespace seeds the deterministic entry ids.
var entryNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://api.masjidbox.com"))

// FormError rejects a submitted form. Nothing is stored.
type FormError struct {
	Code string
}

func (e *FormError) Error() string {
	return "invalid setup form: " + e.Code
}

// IsCode reports whether err is a FormError carrying code.
func IsCode(err error, code string) bool {
	var formErr *FormError
	return errors.As(err, &formErr) && formErr.Code == code
}

// Form is the user-submitted place configuration.
type Form struct {
	Slug   string `json:"slug" yaml:"slug"`
	APIKey string `json:"apikey" yaml:"apikey"`
	Days   *int   `json:"days,omitempty" yaml:"days"`
}

// Flow validates forms and creates place configurations.
type Flow struct {
	store store.Store
}

// NewFlow creates a flow persisting to s.
func NewFlow(s store.Store) *Flow {
	return &Flow{store: s}
}

// UniqueID returns the stable unique id of the place with slug.
func UniqueID(slug string) string {
	return sensor.Domain + "_" + slug
}

// EntryID derives the configuration id from the slug.
func EntryID(slug string) string {
	return uuid.NewSHA1(entryNamespace, []byte(UniqueID(slug))).String()
}

// Validate trims and checks a form and returns the place it describes,
// without touching the store.
func Validate(form Form) (*model.Place, error) {
	slug := strings.TrimSpace(form.Slug)
	apiKey := strings.TrimSpace(form.APIKey)
	days := masjidbox.DefaultDays
	if form.Days != nil {
		days = *form.Days
	}

	switch {
	case slug == "":
		return nil, &FormError{Code: CodeSlugRequired}
	case apiKey == "":
		return nil, &FormError{Code: CodeAPIKeyRequired}
	case days < 1:
		return nil, &FormError{Code: CodeInvalidDays}
	}

	return &model.Place{
		ID:       EntryID(slug),
		UniqueID: UniqueID(slug),
		Slug:     slug,
		APIKey:   apiKey,
		Days:     days,
		Title:    fmt.Sprintf("MasjidBox - %s", slug),
	}, nil
}

// Submit validates form, rejects duplicate slugs and stores the new place.
func (f *Flow) Submit(ctx context.Context, form Form) (*model.Place, error) {
	place, err := Validate(form)
	if err != nil {
		return nil, err
	}

	exists, err := f.store.SlugExists(ctx, place.Slug)
	if err != nil {
		return nil, err
	}
	if exists {
		log.Warn().Str("slug", place.Slug).Msg("[setup] place already configured")
		return nil, &FormError{Code: CodeAlreadyConfigured}
	}

	if err := f.store.CreatePlace(ctx, place); err != nil {
		// A concurrent submission for the same slug won the insert.
		if errors.Is(err, store.ErrDuplicate) {
			log.Warn().Str("slug", place.Slug).Msg("[setup] place already configured")
			return nil, &FormError{Code: CodeAlreadyConfigured}
		}
		return nil, err
	}

	log.Info().Str("slug", place.Slug).Str("id", place.ID).Msg("[setup] place configured")
	return place, nil
}

// Seed submits every form, skipping slugs that are already configured. It
// returns the number of places created.
func (f *Flow) Seed(ctx context.Context, forms []Form) int {
	created := 0
	for _, form := range forms {
		_, err := f.Submit(ctx, form)
		switch {
		case IsCode(err, CodeAlreadyConfigured):
			continue
		case err != nil:
			log.Error().Err(err).Str("slug", form.Slug).Msg("[setup] failed to seed place")
			continue
		}
		created++
	}
	return created
}
