// ABOUTME: Tests for CRM record models
// ABOUTME: Validates object types, value encoding, record helpers and root repair
package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObjectType(t *testing.T) {
	tests := []struct {
		in   string
		want ObjectType
	}{
		{"opportunity", TypeOpportunity},
		{"Opportunity", TypeOpportunity},
		{"opportunities", TypeOpportunity},
		{" lead ", TypeLead},
		{"tasks", TypeTask},
	}
	for _, tt := range tests {
		got, err := ParseObjectType(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseObjectType("campaign")
	assert.True(t, errors.Is(err, ErrUnsupportedType))
}

func TestBucketKey(t *testing.T) {
	key, err := TypeOpportunity.BucketKey()
	require.NoError(t, err)
	assert.Equal(t, "opportunities", key)

	_, err = ObjectType("widget").BucketKey()
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestValueJSON(t *testing.T) {
	var r Record
	err := json.Unmarshal([]byte(`{"name":"Acme","amount":5000,"deleted":false,"closeDate":null}`), &r)
	require.NoError(t, err)

	assert.True(t, r.Get("name").Equal(String("Acme")))
	assert.True(t, r.Get("amount").Equal(Number(5000)))
	assert.True(t, r.Get("deleted").Equal(Bool(false)))
	assert.True(t, r.Has("closeDate"))
	assert.True(t, r.Get("closeDate").IsNull())
	assert.False(t, r.Has("stage"))

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Acme","amount":5000,"deleted":false,"closeDate":null}`, string(out))
}

func TestValueRejectsNested(t *testing.T) {
	_, err := ParseRecord([]byte(`{"name":"Acme","owner":{"id":1}}`))
	assert.ErrorIs(t, err, ErrUnsupportedValue)

	_, err = ParseRecord([]byte(`{"tags":["a"]}`))
	assert.ErrorIs(t, err, ErrUnsupportedValue)

	_, err = ParseRecord([]byte(`null`))
	assert.ErrorIs(t, err, ErrUnsupportedValue)
}

func TestValueIsBlank(t *testing.T) {
	assert.True(t, Null().IsBlank())
	assert.True(t, String("   ").IsBlank())
	assert.False(t, String("x").IsBlank())
	assert.False(t, Number(0).IsBlank())
	assert.False(t, Bool(false).IsBlank())
}

func TestRecordFromMap(t *testing.T) {
	r, err := RecordFromMap(map[string]interface{}{
		"salesforceId": "006A",
		"amount":       float64(12.5),
		"deleted":      true,
		"ownerName":    nil,
	})
	require.NoError(t, err)
	assert.Equal(t, "006A", r.SalesforceID())
	assert.Equal(t, "12.5", r.Text("amount"))
	assert.True(t, r.Deleted())
	assert.True(t, r.Has("ownerName"))

	_, err = RecordFromMap(map[string]interface{}{"x": []string{"a"}})
	assert.ErrorIs(t, err, ErrUnsupportedValue)
}

func TestRecordCloneIsIndependent(t *testing.T) {
	r := Record{"name": String("A")}
	c := r.Clone()
	c["name"] = String("B")
	assert.Equal(t, "A", r.Name())
	assert.Equal(t, "B", c.Name())
}

func TestParseTime(t *testing.T) {
	ts, ok := ParseTime("2024-01-02T00:00:00Z")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), ts)

	ts, ok = ParseTime("2024-03-01")
	require.True(t, ok)
	assert.Equal(t, 2024, ts.Year())

	_, ok = ParseTime("yesterday")
	assert.False(t, ok)
	_, ok = ParseTime("")
	assert.False(t, ok)
}

func TestNewRootHasAllBuckets(t *testing.T) {
	root := NewRoot()
	for _, typ := range ObjectTypes {
		b, err := root.Bucket(typ)
		require.NoError(t, err)
		assert.Empty(t, b.ByID)
		assert.Nil(t, b.LastSync)
	}

	data, err := root.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"leads":{"byId":{},"lastSync":null},
		"contacts":{"byId":{},"lastSync":null},
		"accounts":{"byId":{},"lastSync":null},
		"opportunities":{"byId":{},"lastSync":null},
		"tasks":{"byId":{},"lastSync":null}
	}`, string(data))
}

func TestEnsureBucketRepairs(t *testing.T) {
	root, err := DecodeRoot([]byte(`{"opportunities":{"lastSync":null},"leads":null}`))
	require.NoError(t, err)

	b, err := root.EnsureBucket(TypeOpportunity)
	require.NoError(t, err)
	assert.NotNil(t, b.ByID)

	b, err = root.EnsureBucket(TypeLead)
	require.NoError(t, err)
	assert.NotNil(t, b.ByID)

	b, err = root.EnsureBucket(TypeTask)
	require.NoError(t, err)
	assert.Same(t, b, root["tasks"])

	_, err = root.EnsureBucket("widget")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestDecodeRootEmpty(t *testing.T) {
	root, err := DecodeRoot(nil)
	require.NoError(t, err)
	assert.Len(t, root, len(ObjectTypes))

	root, err = DecodeRoot([]byte("null"))
	require.NoError(t, err)
	assert.Len(t, root, len(ObjectTypes))

	_, err = DecodeRoot([]byte("{not json"))
	assert.Error(t, err)
}
