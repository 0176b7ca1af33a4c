package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupanel/edupanel-api/internal/models"
	appErrors "github.com/edupanel/edupanel-api/pkg/errors"
)

type mockGradingScaleStore struct {
	scale   *models.GradingScale
	findErr error
	deleted bool
}

func (m *mockGradingScaleStore) FindByOwner(ctx context.Context, ownerID string) (*models.GradingScale, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.scale == nil {
		return nil, sql.ErrNoRows
	}
	return m.scale, nil
}

func (m *mockGradingScaleStore) Upsert(ctx context.Context, scale *models.GradingScale) error {
	m.scale = scale
	return nil
}

func (m *mockGradingScaleStore) Delete(ctx context.Context, ownerID string) error {
	m.deleted = true
	m.scale = nil
	return nil
}

func TestGradingScaleServiceEffectiveBandsFallsBackToDefaults(t *testing.T) {
	svc := NewGradingScaleService(&mockGradingScaleStore{}, nil)

	bands, err := svc.EffectiveBands(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultGradeBands, bands)

	// an empty stored scale also falls back
	svc = NewGradingScaleService(&mockGradingScaleStore{scale: &models.GradingScale{OwnerID: "owner-1"}}, nil)
	bands, err = svc.EffectiveBands(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultGradeBands, bands)
}

func TestGradingScaleServiceEffectiveBandsPrefersStoredScale(t *testing.T) {
	custom := models.GradeBands{
		{Grade: "Pass", MinPercent: 40, MaxPercent: 100},
		{Grade: "Fail", MinPercent: 0, MaxPercent: 40},
	}
	svc := NewGradingScaleService(&mockGradingScaleStore{scale: &models.GradingScale{OwnerID: "owner-1", Bands: custom}}, nil)

	bands, err := svc.EffectiveBands(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, custom, bands)
	assert.Equal(t, "Pass", bands.GradeFor(40))
	assert.Equal(t, "Fail", bands.GradeFor(39.99))
}

func TestGradingScaleServiceGetSynthesisesDefaultScale(t *testing.T) {
	svc := NewGradingScaleService(&mockGradingScaleStore{}, nil)

	scale, err := svc.Get(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "owner-1", scale.OwnerID)
	assert.Equal(t, models.DefaultGradeBands, scale.Bands)
}

func TestGradingScaleServiceSetRejectsInvalidBands(t *testing.T) {
	store := &mockGradingScaleStore{}
	svc := NewGradingScaleService(store, nil)

	_, err := svc.Set(context.Background(), "owner-1", models.GradeBands{
		{Grade: "Top", MinPercent: 50, MaxPercent: 100},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidGradeBands.Code, appErrors.FromError(err).Code)
	assert.Nil(t, store.scale)
}

func TestGradingScaleServiceSetStoresValidBands(t *testing.T) {
	store := &mockGradingScaleStore{}
	svc := NewGradingScaleService(store, nil)

	bands := models.GradeBands{
		{Grade: "Distinction", MinPercent: 75, MaxPercent: 100},
		{Grade: "Pass", MinPercent: 33, MaxPercent: 75},
		{Grade: "Fail", MinPercent: 0, MaxPercent: 33},
	}
	scale, err := svc.Set(context.Background(), "owner-1", bands)
	require.NoError(t, err)
	assert.Equal(t, bands, scale.Bands)
	require.NotNil(t, store.scale)
	assert.Equal(t, "owner-1", store.scale.OwnerID)
}

func TestGradingScaleServiceReset(t *testing.T) {
	store := &mockGradingScaleStore{scale: &models.GradingScale{OwnerID: "owner-1", Bands: models.DefaultGradeBands}}
	svc := NewGradingScaleService(store, nil)

	require.NoError(t, svc.Reset(context.Background(), "owner-1"))
	assert.True(t, store.deleted)

	bands, err := svc.EffectiveBands(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultGradeBands, bands)
}
