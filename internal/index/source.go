package index

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/kgchat-backend/internal/platform/gcp"
)

// Source produces the raw rows of the index.
type Source interface {
	Rows(ctx context.Context) ([]Row, error)
	Describe() string
}

// FileSource reads JSON lines of {"cui","name","embedding"} from local disk. A ".gz" suffix is
// decompressed transparently.
type FileSource struct {
	Path string
}

func (s FileSource) Describe() string { return "file:" + s.Path }

func (s FileSource) Rows(ctx context.Context) ([]Row, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrNotLoaded, s.Path)
		}
		return nil, err
	}
	defer f.Close()
	return readMaybeGzip(ctx, f, s.Path)
}

// GCSSource reads the same JSON lines format from a Cloud Storage object.
type GCSSource struct {
	Client *storage.Client
	Bucket string
	Object string
}

func (s GCSSource) Describe() string { return "gs://" + s.Bucket + "/" + s.Object }

func (s GCSSource) Rows(ctx context.Context) ([]Row, error) {
	r, err := gcp.OpenObject(ctx, s.Client, s.Bucket, s.Object)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrNotLoaded, err)
		}
		return nil, err
	}
	defer r.Close()
	return readMaybeGzip(ctx, r, s.Object)
}

// SQLSource reads rows from a table with columns cui, name and embedding (a JSON array).
type SQLSource struct {
	DB    *gorm.DB
	Table string
}

type embeddingRecord struct {
	CUI       string         `gorm:"column:cui"`
	Name      string         `gorm:"column:name"`
	Embedding datatypes.JSON `gorm:"column:embedding"`
}

func (s SQLSource) Describe() string { return "sql:" + s.Table }

func (s SQLSource) Rows(ctx context.Context) ([]Row, error) {
	if s.DB == nil {
		return nil, fmt.Errorf("%w: nil db", ErrNotLoaded)
	}
	var recs []embeddingRecord
	err := s.DB.WithContext(ctx).
		Table(s.Table).
		Select("cui, name, embedding").
		Order("cui").
		Find(&recs).Error
	if err != nil {
		if isMissingTable(err) {
			return nil, fmt.Errorf("%w: table %s missing", ErrNotLoaded, s.Table)
		}
		return nil, fmt.Errorf("read %s: %w", s.Table, err)
	}

	rows := make([]Row, 0, len(recs))
	for _, rec := range recs {
		var vec []float32
		if err := json.Unmarshal(rec.Embedding, &vec); err != nil {
			return nil, fmt.Errorf("decode embedding for %s: %w", rec.CUI, err)
		}
		rows = append(rows, Row{ID: strings.TrimSpace(rec.CUI), Name: strings.TrimSpace(rec.Name), Vector: vec})
	}
	return rows, nil
}

func isMissingTable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.TrimSpace(pgErr.Code) == "42P01" // undefined_table
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such table")
}

type jsonRow struct {
	CUI       string    `json:"cui"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Embedding []float32 `json:"embedding"`
}

func readMaybeGzip(ctx context.Context, r io.Reader, name string) ([]Row, error) {
	if strings.HasSuffix(strings.ToLower(name), ".gz") {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gunzip %s: %w", name, err)
		}
		defer zr.Close()
		r = zr
	}
	return ReadJSONL(ctx, r)
}

// ReadJSONL decodes one row per non-blank line. Field names match case-insensitively, so
// {"CUI","Name","embedding"} exports load as-is.
func ReadJSONL(ctx context.Context, r io.Reader) ([]Row, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)

	var rows []Row
	line := 0
	for sc.Scan() {
		line++
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var jr jsonRow
		if err := json.Unmarshal([]byte(raw), &jr); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		id := strings.TrimSpace(jr.CUI)
		if id == "" {
			id = strings.TrimSpace(jr.ID)
		}
		name := strings.TrimSpace(jr.Name)
		if name == "" {
			return nil, fmt.Errorf("line %d: missing name", line)
		}
		if id == "" {
			id = name
		}
		rows = append(rows, Row{ID: id, Name: name, Vector: jr.Embedding})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}
