package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academy-enrollment-api/pkg/errors"
	"github.com/noah-isme/academy-enrollment-api/pkg/storage"
)

type paymentServiceMock struct {
	attachRef   string
	attachBy    *models.Principal
	attachErr   error
	approvedBy  string
	approveErr  error
	rejectedFor string
}

func (m *paymentServiceMock) AttachVoucher(ctx context.Context, installmentID, voucherRef string, requester *models.Principal) (*models.Installment, error) {
	m.attachRef = voucherRef
	m.attachBy = requester
	if m.attachErr != nil {
		return nil, m.attachErr
	}
	return &models.Installment{ID: installmentID, VoucherRef: &voucherRef}, nil
}

func (m *paymentServiceMock) ApproveInstallment(ctx context.Context, installmentID, adminID string) (*models.ApprovalResult, error) {
	m.approvedBy = adminID
	if m.approveErr != nil {
		return nil, m.approveErr
	}
	return &models.ApprovalResult{InstallmentID: installmentID, PlanCompleted: true, EnrollmentAccepted: true}, nil
}

func (m *paymentServiceMock) RejectVoucher(ctx context.Context, installmentID, adminID, reason string) (*models.Installment, error) {
	m.rejectedFor = reason
	return &models.Installment{ID: installmentID}, nil
}

func newVoucherStorage(t *testing.T) *storage.LocalStorage {
	t.Helper()
	s, err := storage.NewLocalStorage(storage.Options{
		BaseDir:      t.TempDir(),
		PublicPrefix: "/uploads",
		MaxSize:      1024,
		AllowedMIMEs: []string{"image/png", "application/pdf"},
	})
	require.NoError(t, err)
	return s
}

func multipartVoucher(t *testing.T, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="voucher"; filename="voucher.png"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func uploadContext(t *testing.T, body *bytes.Buffer, contentType string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	c, w := newTestContext(http.MethodPost, "/installments/inst-1/voucher", nil, studentClaims)
	req, _ := http.NewRequest(http.MethodPost, "/installments/inst-1/voucher", body)
	req.Header.Set("Content-Type", contentType)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "inst-1"}}
	return c, w
}

func storedFiles(t *testing.T, s *storage.LocalStorage) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	return entries
}

func TestPaymentHandlerAttachVoucherJSON(t *testing.T) {
	mockSvc := &paymentServiceMock{}
	handler := NewPaymentHandler(mockSvc, nil, nil)

	c, w := newTestContext(http.MethodPost, "/installments/inst-1/voucher", []byte(`{"voucher_ref":"/uploads/v.png"}`), studentClaims)
	c.Params = gin.Params{{Key: "id", Value: "inst-1"}}
	handler.AttachVoucher(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/uploads/v.png", mockSvc.attachRef)
	assert.Equal(t, "stu-1", mockSvc.attachBy.SubjectID)
}

func TestPaymentHandlerAttachVoucherUpload(t *testing.T) {
	mockSvc := &paymentServiceMock{}
	store := newVoucherStorage(t)
	handler := NewPaymentHandler(mockSvc, store, nil)

	body, contentType := multipartVoucher(t, "image/png", []byte("png-bytes"))
	c, w := uploadContext(t, body, contentType)
	handler.AttachVoucher(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, storedFiles(t, store), 1)
	assert.Equal(t, "/uploads/"+storedFiles(t, store)[0].Name(), mockSvc.attachRef)

	content, err := os.ReadFile(filepath.Join(store.Dir(), storedFiles(t, store)[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(content))
}

func TestPaymentHandlerUploadRemovedWhenAttachFails(t *testing.T) {
	mockSvc := &paymentServiceMock{attachErr: appErrors.Clone(appErrors.ErrForbidden, "installment belongs to another student")}
	store := newVoucherStorage(t)
	handler := NewPaymentHandler(mockSvc, store, nil)

	body, contentType := multipartVoucher(t, "application/pdf", []byte("%PDF"))
	c, w := uploadContext(t, body, contentType)
	handler.AttachVoucher(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, storedFiles(t, store))
}

func TestPaymentHandlerUploadRejectsUnsupportedType(t *testing.T) {
	mockSvc := &paymentServiceMock{}
	store := newVoucherStorage(t)
	handler := NewPaymentHandler(mockSvc, store, nil)

	body, contentType := multipartVoucher(t, "text/plain", []byte("hello"))
	c, w := uploadContext(t, body, contentType)
	handler.AttachVoucher(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, mockSvc.attachRef)
	assert.Empty(t, storedFiles(t, store))
}

func TestPaymentHandlerApprove(t *testing.T) {
	mockSvc := &paymentServiceMock{}
	handler := NewPaymentHandler(mockSvc, nil, nil)

	c, w := newTestContext(http.MethodPost, "/admin/installments/inst-1/approve", nil, adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "inst-1"}}
	handler.Approve(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin-1", mockSvc.approvedBy)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, true, data["enrollment_accepted"])
}

func TestPaymentHandlerApproveAlreadyPaid(t *testing.T) {
	mockSvc := &paymentServiceMock{approveErr: appErrors.Clone(appErrors.ErrAlreadyPaid, "installment inst-1 already paid")}
	handler := NewPaymentHandler(mockSvc, nil, nil)

	c, w := newTestContext(http.MethodPost, "/admin/installments/inst-1/approve", nil, adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "inst-1"}}
	handler.Approve(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	errPayload := decodeEnvelope(t, w)["error"].(map[string]interface{})
	assert.Equal(t, "ALREADY_PAID", errPayload["code"])
}

func TestPaymentHandlerRejectVoucherRequiresReason(t *testing.T) {
	mockSvc := &paymentServiceMock{}
	handler := NewPaymentHandler(mockSvc, nil, nil)

	c, w := newTestContext(http.MethodPost, "/admin/installments/inst-1/reject-voucher", []byte(`{"reason":"blurry"}`), adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "inst-1"}}
	handler.RejectVoucher(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "blurry", mockSvc.rejectedFor)
}
