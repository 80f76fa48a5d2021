package testutils

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"hamboard/pkg/helper/x509x"
)

func TestDBName(t *testing.T) {
	type args struct {
		name string
	}
	tests := []struct {
		name string
		args args
		want string
	}{
		{"many slash", args{name: "TestSQLStore_listMessages/pgsql/author"}, "testsqlstore_listmessages_pgsql_author"},
		{"colon and hash", args{name: "Test:Board#01"}, "test_board_01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, DBName(tt.args.name))
		})
	}
}

func TestWriteRootCA(t *testing.T) {
	name := WriteRootCA(t, t.TempDir(), "Community Root")

	data, err := os.ReadFile(name)
	require.NoError(t, err)

	cert, err := x509x.ParseCertificate(data)
	require.NoError(t, err)
	require.True(t, cert.IsCA)
	require.Equal(t, "Community Root", cert.Subject.CommonName)
}
