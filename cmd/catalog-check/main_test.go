package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/univ-lifecycle-api/internal/models"
)

type loaderStub struct {
	snap *models.CatalogSnapshot
	err  error
}

func (l loaderStub) LoadSnapshot(ctx context.Context) (*models.CatalogSnapshot, error) {
	return l.snap, l.err
}

func TestCheckReportsConsistentCatalog(t *testing.T) {
	rep := check(context.Background(), loaderStub{snap: &models.CatalogSnapshot{
		Statuses: []models.StatusCode{
			{Code: "APSB", Category: models.StatusCategoryApplication, Active: true},
			{Code: "APIV", Category: models.StatusCategoryReview, Active: true},
		},
		Transitions: []models.WorkflowTransition{{FromStatus: "APSB", ToStatus: "APIV", TriggerCode: "TRVF"}},
	}})

	assert.True(t, rep.OK)
	assert.Equal(t, 2, rep.Statuses)
	assert.Equal(t, 1, rep.Transitions)
	assert.Empty(t, rep.Error)
}

func TestCheckReportsInconsistentCatalog(t *testing.T) {
	rep := check(context.Background(), loaderStub{snap: &models.CatalogSnapshot{
		Transitions: []models.WorkflowTransition{{FromStatus: "APSB", ToStatus: "GRAD", TriggerCode: "TRVF"}},
	}})

	assert.False(t, rep.OK)
	assert.Equal(t, 1, rep.Transitions)
	assert.NotEmpty(t, rep.Error)
}

func TestCheckReportsLoadFailure(t *testing.T) {
	rep := check(context.Background(), loaderStub{err: errors.New("load status codes: connection reset")})

	assert.False(t, rep.OK)
	assert.Contains(t, rep.Error, "connection reset")
}
