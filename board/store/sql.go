package store

import (
	"context"

	"github.com/whitekid/goxp/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"hamboard/board/store/models"
	"hamboard/board/types"
	"hamboard/pkg/helper"
	"hamboard/pkg/helper/gormx"
)

type sqlStoreImpl struct {
	db *gorm.DB
}

var _ Interface = (*sqlStoreImpl)(nil)

// NewSQLStore open message store; tables are created if not exists
func NewSQLStore(dburl string) (Interface, error) {
	db, err := gormx.Open(dburl, &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: "hamboard_",
		},
	})
	if err != nil {
		return nil, err
	}

	if err := models.Migrate(db); err != nil {
		return nil, err
	}

	return &sqlStoreImpl{db: db}, nil
}

func (s *sqlStoreImpl) CreateMessage(ctx context.Context, author string, content string) (*types.Message, error) {
	msgRef := &models.Message{
		Author:  author,
		Content: content,
	}

	if tx := s.db.WithContext(ctx).Create(msgRef); tx.Error != nil {
		return nil, gormx.ConvertSQLError(tx.Error)
	}

	return modelToMessage(msgRef), nil
}

func (s *sqlStoreImpl) ListMessages(ctx context.Context, opts MessageListOpt) ([]*types.Message, error) {
	if err := helper.ValidateStruct(&opts); err != nil {
		return nil, err
	}

	tx := s.db.WithContext(ctx).Model(&models.Message{})
	if opts.Author != "" {
		tx = tx.Where("author = ?", opts.Author)
	}

	limit := opts.Limit
	if limit == 0 {
		limit = types.DefaultListLimit
	}

	var results []*models.Message
	if r := tx.Order("created DESC").Order("id").Limit(limit).Find(&results); r.Error != nil {
		return nil, gormx.ConvertSQLError(r.Error)
	}

	return fx.Map(results, modelToMessage), nil
}

func (s *sqlStoreImpl) GetMessage(ctx context.Context, id string) (*types.Message, error) {
	var msgRef models.Message
	if tx := s.db.WithContext(ctx).First(&msgRef, "id = ?", id); tx.Error != nil {
		return nil, gormx.ConvertSQLError(tx.Error)
	}

	return modelToMessage(&msgRef), nil
}

func modelToMessage(m *models.Message) *types.Message {
	return &types.Message{
		ID:      m.ID,
		Author:  m.Author,
		Content: m.Content,
		Created: m.Created,
	}
}
