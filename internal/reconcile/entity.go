package reconcile

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"recordsync/internal/recordstore"
	"recordsync/internal/services"
	"recordsync/internal/value"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Entity is one source item.
type Entity struct {
	ID string `json:"id" yaml:"id" validate:"required,max=200"`
	// CreatedAt is the unix time the source reports the entity was created.
	// Zero means unknown.
	CreatedAt int64       `json:"created_at" yaml:"created_at" validate:"gte=0"`
	Payload   value.Value `json:"payload" yaml:"-"`
}

// Validate checks that the entity can be stored.
func (e Entity) Validate() error {
	if err := validate.Struct(e); err != nil {
		return services.Wrap(services.ErrValidation, "reconcile", "validate entity", e.ID, err)
	}
	if !recordstore.ValidID(e.ID) {
		return services.Wrap(services.ErrValidation, "reconcile", "validate entity",
			fmt.Sprintf("id %q cannot be used as a file name", e.ID), nil)
	}
	if e.Payload.IsNull() {
		return services.Wrap(services.ErrValidation, "reconcile", "validate entity",
			fmt.Sprintf("%s has no payload", e.ID), nil)
	}
	return nil
}

// Snapshot is one fetch from the source.
type Snapshot struct {
	Entities []Entity
	// Complete is set by the source only when the fetch is known to cover
	// the whole universe of entities. Deletions require it.
	Complete  bool
	FetchedAt time.Time
}

// IDs returns the ids in the snapshot.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.Entities))
	for _, e := range s.Entities {
		ids = append(ids, e.ID)
	}
	return ids
}
