package retriever

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/higress-group/newsrag/common/logger"
	"github.com/higress-group/newsrag/temporal"
)

// Article is the archive row. PublishedAt is stored in UTC so that range
// comparisons in sqlite stay lexicographic.
type Article struct {
	ID          uint       `gorm:"primaryKey"`
	DocID       string     `gorm:"size:128;index"`
	Title       string     `gorm:"size:512"`
	URL         string     `gorm:"size:1024;uniqueIndex"`
	Content     string     `gorm:"type:text"`
	Source      string     `gorm:"size:128"`
	PublishedAt *time.Time `gorm:"index"`
	CreatedAt   time.Time
}

// Archive is a sqlite article archive accessed through gorm.
type Archive struct {
	db *gorm.DB
}

// candidateFactor widens the SQL candidate set before keyword re-scoring.
const candidateFactor = 4

func OpenArchive(path string) (*Archive, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open archive %s failed, err: %w", path, err)
	}
	if err := db.AutoMigrate(&Article{}); err != nil {
		return nil, fmt.Errorf("migrate archive failed, err: %w", err)
	}
	logger.Infof("article archive opened at %s", path)
	return &Archive{db: db}, nil
}

func (a *Archive) Type() string { return "archive" }

func (a *Archive) SupportsDateFilter() bool { return true }

// Add upserts documents by URL.
func (a *Archive) Add(ctx context.Context, docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}
	rows := make([]Article, 0, len(docs))
	for _, d := range docs {
		row := Article{DocID: d.ID, Title: d.Title, URL: d.URL, Content: d.Content, Source: d.Source}
		if row.URL == "" {
			row.URL = "doc:" + d.ID
		}
		if d.PublishedAt != nil {
			t := d.PublishedAt.UTC()
			row.PublishedAt = &t
		}
		rows = append(rows, row)
	}
	return a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{"doc_id", "title", "content", "source", "published_at"}),
	}).Create(&rows).Error
}

func (a *Archive) Retrieve(ctx context.Context, query string, filter *temporal.DateRange, topK int) ([]Document, error) {
	terms := Terms(query)
	if len(terms) == 0 {
		return nil, nil
	}
	conds := make([]string, 0, len(terms))
	args := make([]interface{}, 0, len(terms)*2)
	for _, t := range terms {
		conds = append(conds, "(LOWER(title) LIKE ? OR LOWER(content) LIKE ?)")
		like := "%" + t + "%"
		args = append(args, like, like)
	}
	q := a.db.WithContext(ctx).Model(&Article{}).Where(strings.Join(conds, " OR "), args...)
	if filter != nil {
		q = q.Where("published_at BETWEEN ? AND ?", filter.Start.UTC(), filter.End.UTC())
	}
	if topK <= 0 {
		topK = 10
	}
	var rows []Article
	if err := q.Order("published_at DESC").Limit(topK * candidateFactor).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("archive search failed, err: %w", err)
	}
	docs := make([]Document, 0, len(rows))
	for _, r := range rows {
		d := Document{ID: r.DocID, Title: r.Title, URL: r.URL, Content: r.Content, Source: r.Source, PublishedAt: r.PublishedAt}
		if strings.HasPrefix(d.URL, "doc:") {
			d.URL = ""
		}
		d.Score = KeywordScore(terms, r.Title+" "+r.Content)
		docs = append(docs, d)
	}
	return rank(docs, topK), nil
}

func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
