// Package recipient resolves the notification target set for an event's
// subject by querying multiple independent sources and merging the results.
package recipient

import (
	"context"

	"go.uber.org/zap"

	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/domain"
)

// Source yields the opted-in contacts one backing store knows about for a
// subject (e.g. store followers, or active staff holding a notifiable role).
type Source interface {
	Name() string
	ListOptedInContacts(ctx context.Context, subjectID string) ([]domain.Recipient, error)
}

// Resolver merges recipients from its sources. Sources are consulted in the
// order they were passed to NewResolver; that order is the merge priority.
type Resolver struct {
	sources []Source
	logger  *zap.Logger
}

func NewResolver(logger *zap.Logger, sources ...Source) *Resolver {
	return &Resolver{sources: sources, logger: logger}
}

// Resolve returns the deduplicated recipient list for subjectID.
//
// Each source failure is logged individually and yields zero recipients from
// that source; resolution continues with the remaining sources rather than
// failing fast. The merge is keyed by contact address, first writer wins.
// An empty result means "nothing to notify" and is not an error.
func (r *Resolver) Resolve(ctx context.Context, subjectID string) []domain.Recipient {
	seen := make(map[string]struct{})
	merged := make([]domain.Recipient, 0)

	for _, src := range r.sources {
		contacts, err := src.ListOptedInContacts(ctx, subjectID)
		if err != nil {
			r.logger.Warn("recipient source unavailable",
				zap.String("source", src.Name()),
				zap.String("subject_id", subjectID),
				zap.Error(err),
			)
			continue
		}

		for _, c := range contacts {
			if c.ContactAddress == "" {
				continue
			}
			if _, dup := seen[c.ContactAddress]; dup {
				continue
			}
			seen[c.ContactAddress] = struct{}{}
			merged = append(merged, c)
		}
	}

	return merged
}
