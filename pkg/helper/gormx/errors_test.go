package gormx

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"hamboard/pkg/testutils"
)

type Post struct {
	ID    string `gorm:"primaryKey;size:22"`
	Title string `gorm:"uniqueIndex;size:100;check:title <> ''"`
}

func TestErrors(t *testing.T) {
	testutils.ForEachSQLDriver(t, func(t *testing.T, dbURL string, reset func()) {
		db, err := Open(dbURL)
		require.NoError(t, err)
		require.NoError(t, db.AutoMigrate(&Post{}))

		type args struct {
			op func() error
		}
		tests := [...]struct {
			name    string
			args    args
			wantErr error
		}{
			{`check constraint`, args{func() error {
				return db.Create(&Post{ID: "empty-title"}).Error
			}}, ErrCheckConstraintFailed},
			{`unique index`, args{func() error {
				require.NoError(t, db.Create(&Post{ID: "first", Title: "hello"}).Error)
				return db.Create(&Post{ID: "second", Title: "hello"}).Error
			}}, ErrUniqueConstraintFailed},
			{`primary key`, args{func() error {
				require.NoError(t, db.Create(&Post{ID: "same", Title: "one"}).Error)
				return db.Create(&Post{ID: "same", Title: "two"}).Error
			}}, ErrUniqueConstraintFailed},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := ConvertSQLError(tt.args.op())
				require.ErrorIs(t, err, tt.wantErr, `unexpected error: error = %+v, wantErr = %v`, err, tt.wantErr)
				require.True(t, IsSQLError(err))
			})
		}
	})
}

func TestConvertSQLErrorPassThrough(t *testing.T) {
	require.NoError(t, ConvertSQLError(nil))
	require.Equal(t, gorm.ErrRecordNotFound, ConvertSQLError(gorm.ErrRecordNotFound))
	require.False(t, IsSQLError(gorm.ErrRecordNotFound))
}
