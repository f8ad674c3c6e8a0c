package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/constants"
	"resume-agent-go/internal/storage/models"
)

// 可以脱离存储验证的入口校验路径：这些检查必须在任何
// 数据库/对象存储调用之前返回。
func newValidationHandler() *ResumeHandler {
	cfg := &config.Config{}
	cfg.Pipeline.MaxFileSizeBytes = 1024
	cfg.Pipeline.MaxBatchSize = 3
	return NewResumeHandler(cfg, nil, nil)
}

func requireAPIError(t *testing.T, err error, status int, code string) *APIError {
	t.Helper()
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, status, ae.Status)
	assert.Equal(t, code, ae.Code)
	return ae
}

func TestHandleUploadRejectsOversizedFile(t *testing.T) {
	h := newValidationHandler()

	resp, err := h.HandleUpload(context.Background(), &UploadRequest{
		Filename: "big.pdf",
		MimeType: "application/pdf",
		Data:     make([]byte, 2048),
	})
	assert.Nil(t, resp)
	requireAPIError(t, err, 413, constants.ErrCodeFileTooLarge)
}

func TestHandleUploadRejectsEmptyFile(t *testing.T) {
	h := newValidationHandler()

	resp, err := h.HandleUpload(context.Background(), &UploadRequest{
		Filename: "empty.pdf",
		MimeType: "application/pdf",
	})
	assert.Nil(t, resp)
	requireAPIError(t, err, 400, constants.ErrCodeNoRawText)
}

func TestHandleUploadRejectsMalformedRequirements(t *testing.T) {
	h := newValidationHandler()

	resp, err := h.HandleUpload(context.Background(), &UploadRequest{
		Filename:     "resume.pdf",
		MimeType:     "application/pdf",
		Data:         []byte("%PDF-1.4"),
		Requirements: "{not json",
	})
	assert.Nil(t, resp)
	requireAPIError(t, err, 400, "INVALID_REQUIREMENTS")
}

func TestHandleBulkUploadRejectsEmptyBatch(t *testing.T) {
	h := newValidationHandler()

	results, err := h.HandleBulkUpload(context.Background(), nil)
	assert.Nil(t, results)
	requireAPIError(t, err, 400, constants.ErrCodeTooManyFiles)
}

func TestHandleBulkUploadRejectsOversizedBatch(t *testing.T) {
	h := newValidationHandler()

	files := make([]*UploadRequest, h.cfg.Pipeline.MaxBatchSize+1)
	for i := range files {
		files[i] = &UploadRequest{Filename: "r.pdf", Data: []byte("x")}
	}

	// 整批在入队任何文件之前拒绝
	results, err := h.HandleBulkUpload(context.Background(), files)
	assert.Nil(t, results)
	requireAPIError(t, err, 400, constants.ErrCodeTooManyFiles)
}

func TestUpdateCandidateRejectsEmptyUpdate(t *testing.T) {
	h := newValidationHandler()

	cand, err := h.UpdateCandidate(context.Background(), "cand-1", nil, nil)
	assert.Nil(t, cand)
	requireAPIError(t, err, 400, "EMPTY_UPDATE")
}

func TestUpdateCandidateRejectsNonEditableField(t *testing.T) {
	h := newValidationHandler()

	cand, err := h.UpdateCandidate(context.Background(), "cand-1", nil, map[string]interface{}{
		"overall_confidence": 0.99,
	})
	assert.Nil(t, cand)
	ae := requireAPIError(t, err, 400, "FIELD_NOT_EDITABLE")
	assert.Contains(t, ae.Message, "overall_confidence")
}

func TestCandidateFieldValuesCoversEditableFields(t *testing.T) {
	vals := candidateFieldValues(&models.Candidate{})
	for field := range editableCandidateFields {
		_, ok := vals[field]
		assert.True(t, ok, "字段 %s 缺少before快照", field)
	}
	assert.Len(t, vals, len(editableCandidateFields))
}

func TestParseRequirementsNormalizes(t *testing.T) {
	got, err := parseRequirements(`{"required_skills":["Go"],"min_years_experience":3}`)
	require.NoError(t, err)
	assert.Contains(t, string(got), `"required_skills":["Go"]`)

	got, err = parseRequirements("")
	require.NoError(t, err)
	assert.Nil(t, got)
}
