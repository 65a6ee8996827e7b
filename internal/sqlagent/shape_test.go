package sqlagent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecognizeShape(t *testing.T) {
	tests := []struct {
		statement string
		want      Shape
	}{
		{"SELECT * FROM applicant_info", ShapeScan{Limit: 10}},
		{"select id, skill from applicant_info where skill like '%go%'", ShapeScan{Limit: 10}},
		{"SELECT COUNT(*) FROM applicant_info", ShapeScan{Limit: 10}},
		{"SELECT COUNT(*) FROM applicants", ShapeCount{}},
		{"SELECT * FROM applicants WHERE id = 7", ShapeLookup{ID: 7}},
		{"SELECT * FROM applicants WHERE ID=42", ShapeLookup{ID: 42}},
		{"SELECT * FROM applicants WHERE id = 'seven'", ShapeUnrecognized{}},
		{"DELETE FROM applicants", ShapeUnrecognized{}},
		{"", ShapeUnrecognized{}},
	}
	for _, tt := range tests {
		t.Run(tt.statement, func(t *testing.T) {
			assert.Equal(t, tt.want, RecognizeShape(tt.statement))
		})
	}
}

func TestNormalizeStatement(t *testing.T) {
	raw := "-- count applicants\n\n  SELECT COUNT(*)\n  FROM applicant_info  \n-- done\n"
	assert.Equal(t, "SELECT COUNT(*) FROM applicant_info", NormalizeStatement(raw))
	assert.Equal(t, "", NormalizeStatement("-- only a comment"))
}
