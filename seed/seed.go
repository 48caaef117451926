// Package seed loads the bundled sample events and subscribers into the stores.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"eventsapi/models"
	"eventsapi/services"
	"eventsapi/utils"
)

//go:embed events.yaml
var sampleYAML []byte

type SampleEvent struct {
	Title       string    `yaml:"title"`
	Date        time.Time `yaml:"date"`
	Location    string    `yaml:"location"`
	Description string    `yaml:"description"`
	ImageURL    string    `yaml:"imageUrl"`
	TicketURL   string    `yaml:"ticketUrl"`
	Source      string    `yaml:"source"`
}

// Draft builds the create input, with the content hash ingesters would compute.
func (e SampleEvent) Draft() models.EventDraft {
	return models.EventDraft{
		Title:       e.Title,
		Date:        e.Date,
		Location:    e.Location,
		Description: e.Description,
		ImageURL:    e.ImageURL,
		TicketURL:   e.TicketURL,
		Source:      e.Source,
		EventHash:   utils.EventHash(e.Title, e.Date, e.Location),
	}
}

type Data struct {
	Events      []SampleEvent `yaml:"events"`
	Subscribers []string      `yaml:"subscribers"`
}

// Load parses the embedded sample file.
func Load() (*Data, error) {
	return Parse(sampleYAML)
}

func Parse(b []byte) (*Data, error) {
	var d Data
	if err := yaml.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("parse seed data: %w", err)
	}
	return &d, nil
}

type Summary struct {
	Removed       int
	Inserted      int
	Skipped       int
	Subscriptions int
}

type Seeder struct {
	events *services.EventService
	subs   *services.SubscriptionService
	log    *zap.Logger
}

func New(events *services.EventService, subs *services.SubscriptionService, log *zap.Logger) *Seeder {
	return &Seeder{events: events, subs: subs, log: log}
}

// Reset hard-deletes every event together with its subscriptions.
func (s *Seeder) Reset(ctx context.Context) (int, error) {
	all, err := s.events.All(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range all {
		err := s.events.Delete(ctx, e.ID.Hex())
		switch {
		case errors.Is(err, models.ErrNotFound):
			// removed by someone else since the listing
		case err != nil:
			return n, err
		default:
			n++
		}
	}
	return n, nil
}

// Events inserts the samples. Ones already present (same content hash) are skipped,
// so running the seeder twice is harmless.
func (s *Seeder) Events(ctx context.Context, samples []SampleEvent) (inserted, skipped int, err error) {
	for _, sample := range samples {
		_, err := s.events.Create(ctx, sample.Draft())
		switch {
		case errors.Is(err, models.ErrDuplicate):
			skipped++
			s.log.Debug("Sample event already present", zap.String("title", sample.Title))
		case err != nil:
			return inserted, skipped, fmt.Errorf("insert %q: %w", sample.Title, err)
		default:
			inserted++
		}
	}
	return inserted, skipped, nil
}

// Subscriptions subscribes each address to perEmail active events, rotating through
// the event list so addresses land on different events.
func (s *Seeder) Subscriptions(ctx context.Context, emails []string, perEmail int) (int, error) {
	events, err := s.events.GetActive(ctx)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	consent := true
	created := 0
	for i, email := range emails {
		for j := 0; j < perEmail && j < len(events); j++ {
			event := events[(i+j)%len(events)]
			_, err := s.subs.Subscribe(ctx, services.SubscribeInput{
				Email:   email,
				EventID: event.ID.Hex(),
				Consent: &consent,
			})
			if errors.Is(err, models.ErrDuplicateSubscription) {
				continue
			}
			if err != nil {
				return created, fmt.Errorf("subscribe %s: %w", email, err)
			}
			created++
		}
	}
	return created, nil
}

// Run applies the whole sample set.
func (s *Seeder) Run(ctx context.Context, d *Data, reset, withSubscriptions bool) (Summary, error) {
	var sum Summary
	var err error
	if reset {
		if sum.Removed, err = s.Reset(ctx); err != nil {
			return sum, err
		}
	}
	if sum.Inserted, sum.Skipped, err = s.Events(ctx, d.Events); err != nil {
		return sum, err
	}
	if withSubscriptions {
		if sum.Subscriptions, err = s.Subscriptions(ctx, d.Subscribers, 2); err != nil {
			return sum, err
		}
	}
	s.log.Info("Seeding completed",
		zap.Int("removed", sum.Removed),
		zap.Int("inserted", sum.Inserted),
		zap.Int("skipped", sum.Skipped),
		zap.Int("subscriptions", sum.Subscriptions))
	return sum, nil
}
