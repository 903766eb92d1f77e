package indexer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetEvent struct {
	Height     int64  `parquet:"name=height, type=INT64"`
	Receipt    string `parquet:"name=receipt, type=BYTE_ARRAY, convertedtype=UTF8"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Action     string `parquet:"name=action, type=BYTE_ARRAY, convertedtype=UTF8"`
	Signer     string `parquet:"name=signer, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt  string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// Export writes the events selected by filter to a parquet file at path,
// oldest first, and returns the number of rows written.
func (i *Indexer) Export(ctx context.Context, path string, filter Filter) (int, error) {
	rows, err := i.List(ctx, filter)
	if err != nil {
		return 0, err
	}

	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("indexer: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetEvent), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for idx := len(rows) - 1; idx >= 0; idx-- {
		row := rows[idx]
		pe := &parquetEvent{
			Height:     row.Height,
			Receipt:    row.Receipt,
			Type:       row.Type,
			Action:     row.Action,
			Signer:     row.Signer,
			Attributes: row.Attributes,
			CreatedAt:  row.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := pw.Write(pe); err != nil {
			pw.WriteStop()
			file.Close()
			return 0, fmt.Errorf("indexer: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return 0, fmt.Errorf("indexer: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("indexer: close parquet file: %w", err)
	}
	i.logger.Info("indexer: exported events", "path", path, "rows", len(rows))
	return len(rows), nil
}
