package models_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/LilVoxy/social_metrics/ETL/models"
)

func TestReasonFor(t *testing.T) {
	tests := []struct {
		err  error
		want models.FailureReason
	}{
		{fmt.Errorf("x.json: %w", models.ErrEmptyExtract), models.FailureEmptyExtract},
		{fmt.Errorf("%w: bad json", models.ErrExtraction), models.FailureExtraction},
		{fmt.Errorf("%w: closed", models.ErrStorage), models.FailureStorage},
		{fmt.Errorf("%w: closed", models.ErrDimensionStore), models.FailureDimensionStore},
		{fmt.Errorf("%w: fk", models.ErrConstraintViolation), models.FailureConstraintViolation},
		{context.Canceled, models.FailureCancelled},
		{errors.New("anything else"), models.FailureStorage},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, models.ReasonFor(tt.err), tt.err.Error())
	}
}

func TestStageError(t *testing.T) {
	cause := fmt.Errorf("%w: fk", models.ErrConstraintViolation)
	err := &models.StageError{
		SourceFile: "2024-01.json",
		Phase:      models.PhaseModelling,
		Reason:     models.FailureConstraintViolation,
		Err:        cause,
	}

	assert.True(t, err.Fatal())
	assert.ErrorIs(t, err, models.ErrConstraintViolation)
	assert.Contains(t, err.Error(), "2024-01.json: Modelling failed (ConstraintViolation)")

	var stageErr *models.StageError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &stageErr))

	notFatal := &models.StageError{Phase: models.PhaseIngestion, Reason: models.FailureEmptyExtract}
	assert.False(t, notFatal.Fatal())
}
