package ledger

import (
	"encoding/json"
	"sort"

	"github.com/bobmcallan/fintrack/internal/common"
	"github.com/bobmcallan/fintrack/internal/models"
)

// decodeDocs unmarshals each document's data into T and tags it with the
// document id. Undecodable documents are logged and skipped.
func decodeDocs[T any](docs []*models.Document, logger *common.Logger, setID func(*T, *models.Document)) []T {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := json.Unmarshal([]byte(doc.Data), &v); err != nil {
			logger.Warn().
				Err(err).
				Str("collection", doc.Collection).
				Str("id", doc.ID).
				Msg("Skipping undecodable document")
			continue
		}
		setID(&v, doc)
		out = append(out, v)
	}
	return out
}

func decodeAccounts(docs []*models.Document, logger *common.Logger) []models.Account {
	return decodeDocs(docs, logger, func(a *models.Account, d *models.Document) { a.ID = d.ID })
}

func decodeHoldings(docs []*models.Document, logger *common.Logger) []models.Holding {
	return decodeDocs(docs, logger, func(h *models.Holding, d *models.Document) { h.ID = d.ID })
}

// decodeTransactions returns transactions ordered by date descending,
// newest created first within a day.
func decodeTransactions(docs []*models.Document, logger *common.Logger) []models.Transaction {
	txs := decodeDocs(docs, logger, func(t *models.Transaction, d *models.Document) {
		t.ID = d.ID
		t.CreatedAt = d.CreatedAt
	})
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].Date != txs[j].Date {
			return txs[i].Date > txs[j].Date
		}
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
	return txs
}
