package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/doccapture/internal/crop"
	"github.com/ayusman/doccapture/internal/geometry"
)

func testFile(mode crop.Mode) *crop.File {
	f := &crop.File{
		Name:        crop.FileName,
		ContentType: crop.ContentType,
		Data:        []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10},
		Width:       800,
		Height:      600,
		Mode:        mode,
	}
	if mode == crop.ModeAuto {
		f.Quad = &geometry.Quad{geometry.Pt(100, 100), geometry.Pt(900, 100), geometry.Pt(900, 700), geometry.Pt(100, 700)}
	}
	return f
}

func TestDocumentRepository_CreateGet(t *testing.T) {
	s := newTestStore(t)
	repo := s.Documents()

	doc := NewDocument(testFile(crop.ModeAuto))
	require.NotEmpty(t, doc.ID)
	require.NoError(t, repo.Create(doc))

	got, err := repo.Get(doc.ID)
	require.NoError(t, err)

	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, crop.FileName, got.Name)
	assert.Equal(t, crop.ContentType, got.ContentType)
	assert.Equal(t, crop.ModeAuto, got.Mode)
	assert.Equal(t, 800, got.Width)
	assert.Equal(t, 600, got.Height)
	assert.Equal(t, 6, got.Size)
	assert.Equal(t, doc.Data, got.Data)
	require.NotNil(t, got.Quad)
	assert.Equal(t, *doc.Quad, *got.Quad)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestDocumentRepository_ManualHasNoQuad(t *testing.T) {
	s := newTestStore(t)
	repo := s.Documents()

	doc := NewDocument(testFile(crop.ModeManual))
	require.NoError(t, repo.Create(doc))

	got, err := repo.Get(doc.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Quad)
	assert.Equal(t, crop.ModeManual, got.Mode)
}

func TestDocumentRepository_GetNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Documents().Get("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDocumentRepository_List(t *testing.T) {
	s := newTestStore(t)
	repo := s.Documents()

	empty, err := repo.List(0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	var ids []string
	for i := 0; i < 3; i++ {
		doc := NewDocument(testFile(crop.ModeAuto))
		require.NoError(t, repo.Create(doc))
		ids = append(ids, doc.ID)
	}

	all, err := repo.List(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID, "newest first")
	assert.Nil(t, all[0].Data, "list omits image data")

	limited, err := repo.List(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	n, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDocumentRepository_DeleteCascades(t *testing.T) {
	s := newTestStore(t)
	docs := s.Documents()

	doc := NewDocument(testFile(crop.ModeAuto))
	require.NoError(t, docs.Create(doc))
	require.NoError(t, s.Deliveries().Record(&Delivery{DocumentID: doc.ID, Sink: "upload", Success: true}))

	require.NoError(t, docs.Delete(doc.ID))
	assert.ErrorIs(t, docs.Delete(doc.ID), ErrNotFound)

	deliveries, err := s.Deliveries().ListByDocument(doc.ID)
	require.NoError(t, err)
	assert.Empty(t, deliveries)
}

func TestDeliveryRepository(t *testing.T) {
	s := newTestStore(t)

	doc := NewDocument(testFile(crop.ModeManual))
	require.NoError(t, s.Documents().Create(doc))

	ok := &Delivery{DocumentID: doc.ID, Sink: "upload", Success: true}
	failed := &Delivery{DocumentID: doc.ID, Sink: "plugin:save-dir", Error: "disk full"}
	require.NoError(t, s.Deliveries().Record(ok))
	require.NoError(t, s.Deliveries().Record(failed))
	assert.NotZero(t, ok.ID)

	got, err := s.Deliveries().ListByDocument(doc.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Success)
	assert.Equal(t, "upload", got[0].Sink)
	assert.False(t, got[1].Success)
	assert.Equal(t, "disk full", got[1].Error)

	// Deliveries must reference an existing document.
	assert.Error(t, s.Deliveries().Record(&Delivery{DocumentID: "missing", Sink: "upload"}))
}

func TestSettingRepository(t *testing.T) {
	s := newTestStore(t)
	settings := s.Settings()

	_, err := settings.Get(SettingCameraDevice)
	assert.ErrorIs(t, err, ErrNotFound)

	v, err := settings.GetOr(SettingCameraDevice, "0")
	require.NoError(t, err)
	assert.Equal(t, "0", v)

	require.NoError(t, settings.Set(SettingCameraDevice, "1"))
	require.NoError(t, settings.Set(SettingCameraDevice, "3"))

	v, err = settings.Get(SettingCameraDevice)
	require.NoError(t, err)
	assert.Equal(t, "3", v)
}
