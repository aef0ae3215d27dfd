package reqbuilder

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_EmptyBody(t *testing.T) {
	b := New()
	body, err := b.Build("GET")
	require.NoError(t, err)
	assert.Equal(t, int64(0), body.Length)
}

func TestBuild_SetBodyParaConflictsWithAddBodyPara(t *testing.T) {
	b := New().AddBodyPara("x", 1).SetBodyPara(map[string]any{"y": 2})
	_, err := b.Build("POST")
	assert.Error(t, err)
}

func TestBuild_BodyNotAllowedOnGet(t *testing.T) {
	b := New().AddBodyPara("x", 1)
	_, err := b.Build("GET")
	assert.Error(t, err)
}

func TestBuild_ObjectBodyFromParamsIsJSON(t *testing.T) {
	b := New().AddBodyPara("name", "vortex")
	body, err := b.Build("POST")
	require.NoError(t, err)
	assert.Equal(t, "application/json", body.ContentType)
	data, _ := io.ReadAll(body.Reader)
	assert.Contains(t, string(data), `"name":"vortex"`)
}

func TestBuild_FormEncoding(t *testing.T) {
	b := New().BodyTypeOf(BodyTypeForm).AddBodyPara("name", "vortex")
	body, err := b.Build("POST")
	require.NoError(t, err)
	assert.Equal(t, "application/x-www-form-urlencoded", body.ContentType)
	data, _ := io.ReadAll(body.Reader)
	assert.Equal(t, "name=vortex", string(data))
}

func TestBuild_Multipart(t *testing.T) {
	b := New().
		AddBodyPara("field", "value").
		AddFilePara(FilePart{FieldName: "file", FileName: "a.txt", Data: []byte("hello")})
	body, err := b.Build("POST")
	require.NoError(t, err)
	assert.Contains(t, body.ContentType, "multipart/form-data")
	data, _ := io.ReadAll(body.Reader)
	assert.Contains(t, string(data), "hello")
}

func TestSubstitutePath_ResolvesTokens(t *testing.T) {
	out, err := SubstitutePath("/router/mq/{name}", map[string]string{"name": "orders"})
	require.NoError(t, err)
	assert.Equal(t, "/router/mq/orders", out)
}

func TestSubstitutePath_UnresolvedTokenIsFatal(t *testing.T) {
	_, err := SubstitutePath("/router/mq/{name}", map[string]string{})
	assert.Error(t, err)
}

func TestBuild_ProgressCallbackFires(t *testing.T) {
	var lastSent int64
	calls := 0
	b := New().SetOnProcess(func(sent, total int64) {
		calls++
		lastSent = sent
	}, 2)
	b.AddBodyPara("data", "abcdefghijkl")
	body, err := b.Build("POST")
	require.NoError(t, err)
	_, _ = io.ReadAll(body.Reader)
	assert.Greater(t, calls, 0)
	assert.Greater(t, lastSent, int64(0))
}

func TestNoThrowAndSkipFlags(t *testing.T) {
	b := New().NoThrow().SkipPreproc().SkipSerialPreproc()
	assert.True(t, b.IsNoThrow())
	skip, skipSerial := b.SkipsPreproc()
	assert.True(t, skip)
	assert.True(t, skipSerial)
}
