package postgres

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alir32a/mydns/internal/dnsmsg"
	"github.com/alir32a/mydns/internal/zonefile"
)

func TestStore_SaveZone(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db)
	zone := &zonefile.Zone{
		Origin: "example.com",
		TTL:    3600,
		Records: []dnsmsg.Record{
			{Name: "example.com", Type: dnsmsg.TypeA, Class: dnsmsg.ClassIN, TTL: 300, Data: dnsmsg.AData{IP: [4]byte{1, 2, 3, 4}}},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO zones`).
		WithArgs(sqlmock.AnyArg(), "example.com", uint32(3600)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`DELETE FROM zone_records WHERE zone_origin = \$1`).
		WithArgs("example.com").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO zone_records`).
		WithArgs(sqlmock.AnyArg(), "example.com", "example.com", int(dnsmsg.TypeA), int(dnsmsg.ClassIN), uint32(300), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveZone(context.Background(), zone))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LoadAll(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db)

	rdata, err := encodeRData(dnsmsg.AData{IP: [4]byte{93, 184, 216, 34}})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT origin, ttl FROM zones`).
		WillReturnRows(sqlmock.NewRows([]string{"origin", "ttl"}).AddRow("example.com", uint32(3600)))
	mock.ExpectQuery(`SELECT name, type, class, ttl, rdata FROM zone_records WHERE zone_origin = \$1`).
		WithArgs("example.com").
		WillReturnRows(sqlmock.NewRows([]string{"name", "type", "class", "ttl", "rdata"}).
			AddRow("example.com", int(dnsmsg.TypeA), int(dnsmsg.ClassIN), uint32(300), rdata))

	zones, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, zones, 1)
	assert.Equal(t, "example.com", zones[0].Origin)
	require.Len(t, zones[0].Records, 1)
	assert.Equal(t, dnsmsg.TypeA, zones[0].Records[0].Type)
	assert.Equal(t, dnsmsg.AData{IP: [4]byte{93, 184, 216, 34}}, zones[0].Records[0].Data)
}
