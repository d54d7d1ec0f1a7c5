package feed

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/bobmcallan/fintrack/internal/interfaces"
	"github.com/bobmcallan/fintrack/internal/models"
)

// Sort orders docs in place according to opts and applies the limit.
func Sort(docs []*models.Document, opts interfaces.QueryOptions) []*models.Document {
	if opts.OrderBy == interfaces.OrderSortKeyDesc {
		sort.SliceStable(docs, func(i, j int) bool {
			if docs[i].SortKey != docs[j].SortKey {
				return docs[i].SortKey > docs[j].SortKey
			}
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		})
	} else {
		sort.SliceStable(docs, func(i, j int) bool {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		})
	}

	if opts.Limit > 0 && len(docs) > opts.Limit {
		docs = docs[:opts.Limit]
	}
	return docs
}

// MergeData overlays fields onto the JSON object in data.
func MergeData(data string, fields map[string]any) (string, error) {
	obj := map[string]any{}
	if data != "" {
		dec := json.NewDecoder(strings.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&obj); err != nil {
			return "", fmt.Errorf("failed to decode document data: %w", err)
		}
	}
	for k, v := range fields {
		obj[k] = v
	}
	merged, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("failed to encode merged document data: %w", err)
	}
	return string(merged), nil
}
