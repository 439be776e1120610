package workflow

import (
	"net/url"
	"strings"

	"github.com/dharsanguruparan/straymandu/internal/model"
)

const maxImages = 10

func (sub Submission) toReport(reporterID string) (*model.Report, error) {
	gender, err := model.ParseGender(sub.Gender)
	if err != nil {
		return nil, &ValidationError{Field: "gender", Message: err.Error()}
	}
	condition, err := model.ParseCondition(sub.Condition)
	if err != nil {
		return nil, &ValidationError{Field: "condition", Message: err.Error()}
	}
	breed := strings.TrimSpace(sub.Breed)
	if breed == "" {
		return nil, &ValidationError{Field: "breed", Message: "breed is required"}
	}
	if !sub.Location.Valid() {
		return nil, &ValidationError{Field: "location", Message: "a valid location is required"}
	}
	images := make([]string, 0, len(sub.ImageURLs))
	for _, raw := range sub.ImageURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, &ValidationError{Field: "imageUrls", Message: "image urls must be absolute"}
		}
		images = append(images, raw)
	}
	if len(images) == 0 {
		return nil, &ValidationError{Field: "imageUrls", Message: "at least one photo is required"}
	}
	if len(images) > maxImages {
		return nil, &ValidationError{Field: "imageUrls", Message: "too many photos"}
	}

	loc := sub.Location
	loc.Address = strings.TrimSpace(loc.Address)
	return &model.Report{
		ReporterID:      reporterID,
		Emergency:       sub.Emergency,
		Name:            strings.TrimSpace(sub.Name),
		Breed:           breed,
		Gender:          gender,
		Color:           strings.TrimSpace(sub.Color),
		Characteristics: strings.TrimSpace(sub.Characteristics),
		Description:     strings.TrimSpace(sub.Description),
		Condition:       condition,
		Location:        loc,
		ImageURLs:       images,
		Status:          model.StatusPending,
	}, nil
}
