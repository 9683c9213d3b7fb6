package presetstore

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/dicom-tools/internal/preset"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("component", "presets").Logger()}
}

// Save validates body as a config document and stores it under name,
// replacing any preset of the same name.
func (s *Service) Save(ctx context.Context, name, description string, body []byte) (*Preset, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, ErrEmptyBody
	}
	doc, err := preset.Decode(body, "preset "+name)
	if err != nil {
		return nil, err
	}

	p := &Preset{
		Name:        name,
		Version:     doc.Version(),
		Description: description,
		Body:        string(body),
	}
	if err := s.repo.Save(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("preset", name).Str("version", p.Version).Msg("preset saved")
	return p, nil
}

func (s *Service) Get(ctx context.Context, name string) (*Preset, error) {
	return s.repo.Get(ctx, name)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Preset, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) Delete(ctx context.Context, name string) error {
	if err := s.repo.Delete(ctx, name); err != nil {
		return err
	}
	s.logger.Info().Str("preset", name).Msg("preset deleted")
	return nil
}

// Document loads and decodes the named preset.
func (s *Service) Document(ctx context.Context, name string) (preset.Document, error) {
	p, err := s.repo.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return preset.Decode([]byte(p.Body), "preset "+name)
}
