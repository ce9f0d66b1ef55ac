// Package follow applies follow/unfollow actions against the directed
// follow graph.
package follow

import (
	"errors"
	"fmt"

	"example.com/dwitter/internal/logger"
	"example.com/dwitter/internal/models"
	"example.com/dwitter/internal/store"
)

var logg = logger.New()

// Action tokens accepted by Apply. Anything else is absorbed as a no-op.
const (
	ActionFollow   = "follow"
	ActionUnfollow = "unfollow"
)

// Mutator toggles a single directed edge between two profiles.
type Mutator struct {
	store store.StoreInterface
}

// New creates a follow-graph mutator.
func New(st store.StoreInterface) *Mutator {
	return &Mutator{store: st}
}

// Apply performs one follow or unfollow from the viewer onto the target
// username.
//
// Rules, in order:
//   - an empty viewerAccountID (unauthenticated) fails with
//     models.ErrForbidden and changes nothing;
//   - an unresolvable target username fails with models.ErrNotFound;
//   - a target equal to the viewer is silently ignored for any action, so
//     the permanent self-edge can never be touched;
//   - "follow" and "unfollow" are idempotent set operations;
//   - any other action token is a harmless no-op, not an error.
func (m *Mutator) Apply(viewerAccountID, targetUsername, action string) error {
	if viewerAccountID == "" {
		return fmt.Errorf("follow mutation: %w", models.ErrForbidden)
	}

	viewer, err := m.store.GetProfile(viewerAccountID)
	if err != nil {
		return err
	}

	target, err := m.store.GetProfileByUsername(targetUsername)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return err
		}
		logg.Error("follow", "Failed to resolve target profile", err)
		return err
	}

	if target.ID == viewer.ID {
		logg.Debug("follow", viewer.Username+" targeted itself, ignoring")
		return nil
	}

	switch action {
	case ActionFollow:
		return m.store.AddFollow(viewer, target)
	case ActionUnfollow:
		return m.store.RemoveFollow(viewer, target)
	default:
		// Malformed payloads must never corrupt the graph; leave it alone.
		logg.Debug("follow", "Ignoring unknown follow action")
		return nil
	}
}
