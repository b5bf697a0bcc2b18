package repository

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/garmin-mcp/internal/model"
)

func TestNullableRoundTrip(t *testing.T) {
	assert.Equal(t, sql.NullInt64{}, NullInt(nil))
	assert.Equal(t, sql.NullInt64{Int64: 0, Valid: true}, NullInt(model.Int(0)))

	assert.Nil(t, IntPtr(sql.NullInt64{}))
	assert.Equal(t, model.Int(0), IntPtr(sql.NullInt64{Valid: true}))
	assert.Equal(t, model.Int(72), IntPtr(NullInt(model.Int(72))))
}
