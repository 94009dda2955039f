package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/spigell/shl-recommender/internal/ai"
	"github.com/spigell/shl-recommender/internal/catalog"
)

// Build embeds every record document and returns an index aligned with records.
// Nothing is returned on partial failure.
func Build(ctx context.Context, embedder ai.Embedder, records []catalog.Record) (*Flat, error) {
	if len(records) == 0 {
		return nil, errors.New("no records to index")
	}

	vectors, err := embedder.EmbedDocuments(ctx, catalog.Documents(records))
	if err != nil {
		return nil, err
	}

	if len(vectors) != len(records) {
		return nil, fmt.Errorf("embedded %d documents, expected %d", len(vectors), len(records))
	}

	flat, err := NewFlat(len(vectors[0]))
	if err != nil {
		return nil, err
	}

	if err := flat.Add(catalog.IDs(records), vectors); err != nil {
		return nil, err
	}

	return flat, nil
}
