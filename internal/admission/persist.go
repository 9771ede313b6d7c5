package admission

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/admissiond/internal/store"
)

// PersistParams is the input to Persister.Persist: everything needed to
// write one draft+generation pair inside a single transaction (§4.5 step 8).
type PersistParams struct {
	UserID             uuid.UUID
	ExistingDraft      *store.Draft
	Title              *string
	Prompt             string
	Platform           string
	IdempotencyKey     *string
	IsRegen            bool
	ParentGenerationID *uuid.UUID
	RegenType          *store.RegenType
}

// Persister persists a draft+generation pair transactionally. Split out of
// Service so tests substitute an in-memory Persister instead of a real
// database connection (Design Notes: "constructor-injected capabilities...
// tests substitute in-memory implementations").
type Persister interface {
	Persist(ctx context.Context, p PersistParams) (store.Draft, store.Generation, error)
}

// TxPersister is the production Persister: it runs the insert(s) inside one
// pgx transaction via store.WithTx, so a new draft and its first generation
// either both land or neither does.
type TxPersister struct {
	db store.Beginner
}

// NewTxPersister builds a TxPersister over a connection pool.
func NewTxPersister(db store.Beginner) *TxPersister {
	return &TxPersister{db: db}
}

// Persist implements Persister.
func (p *TxPersister) Persist(ctx context.Context, params PersistParams) (store.Draft, store.Generation, error) {
	var draft store.Draft
	var gen store.Generation

	err := store.WithTx(ctx, p.db, func(tx pgx.Tx) error {
		generations := store.NewGenerationStore(tx)

		var err error
		if params.ExistingDraft != nil {
			draft = *params.ExistingDraft
		} else {
			drafts := store.NewDraftStore(tx)
			draft, err = drafts.Create(ctx, store.CreateDraftParams{
				OwnerID:  params.UserID,
				Title:    params.Title,
				Prompt:   params.Prompt,
				Platform: store.Platform(params.Platform),
			})
			if err != nil {
				return err
			}
		}

		gen, err = generations.Create(ctx, store.CreateGenerationParams{
			DraftID:            draft.ID,
			OwnerID:            params.UserID,
			IdempotencyKey:     params.IdempotencyKey,
			IsRegen:            params.IsRegen,
			ParentGenerationID: params.ParentGenerationID,
			RegenType:          params.RegenType,
		})
		return err
	})
	if err != nil {
		return store.Draft{}, store.Generation{}, err
	}
	return draft, gen, nil
}
