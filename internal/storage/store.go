package storage

import (
	"context"
	"fmt"
	"time"

	"cdpoverride/internal/logger"
	"cdpoverride/pkg/model"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Record 一次处置的审计记录，只在本次运行内有效
type Record struct {
	ID          string `gorm:"primaryKey;size:36"`
	TraceID     string `gorm:"size:36;index"`
	Target      string
	RequestID   string `gorm:"index"`
	URL         string
	Type        string `gorm:"index"`
	Disposition string
	StatusCode  int
	Detail      string // JSON: localPath/indexFallback/contentType/bytes/reason
	CreatedAt   time.Time
}

// Store 基于 SQLite 内存库的审计存储
type Store struct {
	db  *gorm.DB
	log logger.Logger
}

// Open 打开存储并建表；dsn 默认是内存库
func Open(dsn, prefix string, l logger.Logger) (*Store, error) {
	if l == nil {
		l = logger.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         NewGormLogger(l),
		NamingStrategy: schema.NamingStrategy{TablePrefix: prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// 内存库每个连接是独立的库
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, log: l}, nil
}

// Close 关闭底层连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save 写入一条事件记录
func (s *Store) Save(ctx context.Context, evt model.Event) error {
	detail, err := buildDetail(evt)
	if err != nil {
		return fmt.Errorf("build detail: %w", err)
	}
	created := time.Now()
	if evt.Timestamp > 0 {
		created = time.UnixMilli(evt.Timestamp)
	}
	rec := &Record{
		ID:          uuid.NewString(),
		TraceID:     evt.TraceID,
		Target:      string(evt.Target),
		RequestID:   evt.RequestID,
		URL:         evt.URL,
		Type:        evt.Type,
		Disposition: string(evt.Disposition),
		StatusCode:  evt.StatusCode,
		Detail:      detail,
		CreatedAt:   created,
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

// Records 按时间顺序返回记录，limit<=0 表示全部
func (s *Store) Records(ctx context.Context, limit int) ([]Record, error) {
	var out []Record
	q := s.db.WithContext(ctx).Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Stats 汇总本次运行的处置情况
func (s *Store) Stats(ctx context.Context) (model.Stats, error) {
	st := model.Stats{ByType: map[string]int64{}, ByContentType: map[string]int64{}}
	recs, err := s.Records(ctx, 0)
	if err != nil {
		return st, err
	}
	for _, r := range recs {
		st.Total++
		st.ByType[r.Type]++
		switch model.Disposition(r.Disposition) {
		case model.DispositionFulfill:
			st.Fulfilled++
		case model.DispositionContinue:
			st.Continued++
		}
		if r.Type == model.EventFault {
			st.Faults++
		}
		d := gjson.Parse(r.Detail)
		if d.Get("indexFallback").Bool() {
			st.IndexFallback++
		}
		if ct := d.Get("contentType").String(); ct != "" {
			st.ByContentType[ct]++
		}
		st.Bytes += d.Get("bytes").Int()
	}
	return st, nil
}

func buildDetail(evt model.Event) (string, error) {
	detail := "{}"
	var err error
	set := func(path string, v any) {
		if err != nil {
			return
		}
		detail, err = sjson.Set(detail, path, v)
	}
	if evt.LocalPath != "" {
		set("localPath", evt.LocalPath)
		set("indexFallback", evt.IndexFallback)
	}
	if evt.ContentType != "" {
		set("contentType", evt.ContentType)
		set("bytes", evt.Bytes)
	}
	if evt.Reason != "" {
		set("reason", evt.Reason)
	}
	return detail, err
}
