package filestore

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/pricewatch/scan-core/internal/domain"
	"github.com/pricewatch/scan-core/internal/pkg/errors"
)

// resultRecord persists one hourly-bucket aggregate: the latest extraction
// plus the running scan counter the hourly-bucket upsert semantics of
// spec.md §6 require.
type resultRecord struct {
	ProductID string                  `json:"productId"`
	ShopID    string                  `json:"shopId"`
	HourBucket string                 `json:"hourBucket"`
	Result    domain.ExtractionResult `json:"result"`
	ScanCount int                     `json:"scanCount"`
}

// ResultSink implements contract.ResultSink with the hourly-bucket
// upsert-and-increment semantics spec.md §6 describes: a
// (productId, shopId, hourBucket) triple is unique; on a repeat, the
// latest price/URL/availability/timestamp overwrite the record and
// ScanCount increments.
type ResultSink struct {
	path string
	mu   sync.Mutex
}

func NewResultSink(path string) *ResultSink {
	return &ResultSink{path: path}
}

func (r *ResultSink) UpsertResults(_ context.Context, results []domain.ExtractionResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.readAll()
	if err != nil {
		return err
	}

	index := make(map[[3]string]int, len(records))
	for i, rec := range records {
		index[bucketKey(rec.ProductID, rec.ShopID, rec.HourBucket)] = i
	}

	for _, result := range results {
		bucket := result.HourBucket()
		key := bucketKey(result.ProductID, result.ShopID, bucket)
		if i, ok := index[key]; ok {
			records[i].Result = result
			records[i].ScanCount++
			continue
		}
		index[key] = len(records)
		records = append(records, resultRecord{
			ProductID:  result.ProductID,
			ShopID:     result.ShopID,
			HourBucket: bucket,
			Result:     result,
			ScanCount:  1,
		})
	}

	return r.writeAll(records)
}

func bucketKey(productID, shopID, hourBucket string) [3]string {
	return [3]string{productID, shopID, hourBucket}
}

func (r *ResultSink) readAll() ([]resultRecord, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "filestore: result file unreadable")
	}
	if len(data) == 0 {
		return nil, nil
	}
	var records []resultRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "filestore: result file malformed")
	}
	return records, nil
}

func (r *ResultSink) writeAll(records []resultRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.Internal, "filestore: result encode failed")
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.System, "filestore: result write failed")
	}
	return nil
}
